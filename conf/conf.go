// Copyright 2024 The ArangoDB-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conf

import (
	"github.com/brennv/arangodb/errors"
)

const (
	DefaultListenAddress        = "127.0.0.1:8529"
	DefaultMaxDispatcherThreads = 16
)

type Config struct {
	ListenAddress        string `help:"Address the AQL cursor API listens on" default:"127.0.0.1:8529"`
	MaxDispatcherThreads int    `help:"Maximum number of concurrent query worker threads" default:"16"`
}

func (c *Config) ApplyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.MaxDispatcherThreads == 0 {
		c.MaxDispatcherThreads = DefaultMaxDispatcherThreads
	}
}

func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return errors.NewInvalidConfigurationError("listen-address must be specified")
	}
	if c.MaxDispatcherThreads < 1 {
		return errors.NewInvalidConfigurationError("max-dispatcher-threads must be at least 1")
	}
	return nil
}
