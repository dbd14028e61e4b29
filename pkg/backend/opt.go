package backend

import (
	"fmt"
	"net/url"

	// Packages
	aws "github.com/aws/aws-sdk-go-v2/aws"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type opt struct {
	url       *url.URL
	awsConfig *aws.Config
	endpoint  string // raw endpoint URL set via WithEndpoint; wired into awsConfig when both are present
	anonymous bool   // forces anonymous credentials; wired into awsConfig when both are present
}

type Opt func(*opt) error

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func apply(url *url.URL, opts ...Opt) (*opt, error) {
	o := opt{url: url}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// WithEndpoint sets the S3 endpoint for S3-compatible services.
// For http:// endpoints, HTTPS is automatically disabled.
func WithEndpoint(endpoint string) Opt {
	return func(o *opt) error {
		if endpoint, err := url.Parse(endpoint); err != nil {
			return err
		} else if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
			return fmt.Errorf("endpoint must be http:// or https://, got %s://", endpoint.Scheme)
		} else {
			o.endpoint = endpoint.String()
			o.set("endpoint", endpoint.String())
			o.set("use_path_style", "true")
			if endpoint.Scheme == "http" {
				o.set("disable_https", "true")
			}
		}
		return nil
	}
}

// WithAnonymous forces use of anonymous credentials.
func WithAnonymous() Opt {
	return func(o *opt) error {
		o.anonymous = true
		o.set("anonymous", "true")
		return nil
	}
}

// WithCreateDir creates the directory of a file:// backend if it doesn't exist
func WithCreateDir() Opt {
	return func(o *opt) error {
		if o.url != nil && o.url.Scheme == "file" {
			o.set("create_dir", "true")
		}
		return nil
	}
}

// WithAWSConfig provides an AWS SDK v2 Config for s3:// URLs. Credentials
// resolved by the config stay inside the server process.
func WithAWSConfig(cfg aws.Config) Opt {
	return func(o *opt) error {
		o.awsConfig = &cfg
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (o *opt) set(key, value string) {
	if o.url == nil {
		return
	}
	q := o.url.Query()
	if value == "" {
		q.Del(key)
	} else {
		q.Set(key, value)
	}
	o.url.RawQuery = q.Encode()
}

// resolveAWSConfig returns a copy of the AWS config with the endpoint and
// anonymous options applied
func (o *opt) resolveAWSConfig() aws.Config {
	cfg := o.awsConfig.Copy()
	if o.endpoint != "" {
		cfg.BaseEndpoint = aws.String(o.endpoint)
	}
	if o.anonymous {
		cfg.Credentials = aws.AnonymousCredentials{}
	}
	if region := o.url.Query().Get("region"); region != "" {
		cfg.Region = region
	}
	return cfg
}
