package config

import (
	"time"

	"restgraph/internal/naming"
	"restgraph/internal/preprocess"
)

// Options converts the file into translation options. Custom resolvers
// are compiled separately since they need a script engine.
func (c *Config) Options() preprocess.Options {
	style, _ := naming.ParseStyle(c.Naming)
	opts := preprocess.Options{
		Naming:                 style,
		AddLimitArgument:       c.AddLimitArgument,
		ProvideErrorExtensions: c.ProvideErrorExtensions,
		GenericPayloadArgName:  c.GenericPayloadArgName,
		OperationIDFieldNames:  c.OperationIDFieldNames,
		AllowEmptyRoot:         c.AllowEmptyRoot,
		Viewer:                 c.Viewer,
		Headers:                c.Headers,
		QueryString:            c.QueryString,
		BaseURL:                c.BaseURL,
	}
	if c.OAuth != nil {
		opts.TokenJSONPath = c.OAuth.TokenJSONPath
		opts.TokenPlacement = preprocess.Placement(c.OAuth.Placement)
	}
	return opts
}

func (t TransportConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

func (t TransportConfig) BreakerCooldown() time.Duration {
	return time.Duration(t.BreakerCooldownSeconds) * time.Second
}
