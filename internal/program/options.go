package program

import (
	"context"
	"time"
)

// config holds the settings applied to every run of a Command.
type config struct {
	env        map[string]string
	dir        string
	inheritEnv bool
	timeout    time.Duration
	ctx        context.Context
}

func newConfig() *config {
	return &config{
		env:        make(map[string]string),
		inheritEnv: true,
		ctx:        context.Background(),
	}
}

// Option is a function that configures a Command.
type Option func(*config)

// WithEnv returns an Option that adds environment variables.
func WithEnv(env map[string]string) Option {
	return func(c *config) {
		for k, v := range env {
			c.env[k] = v
		}
	}
}

// WithDir returns an Option that sets the working directory.
func WithDir(dir string) Option {
	return func(c *config) {
		c.dir = dir
	}
}

// WithInheritEnv returns an Option that controls whether the program sees
// the parent environment. It is on by default.
func WithInheritEnv(inherit bool) Option {
	return func(c *config) {
		c.inheritEnv = inherit
	}
}

// WithTimeout returns an Option that kills the program after d.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithContext returns an Option that kills the program when ctx is done.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}
