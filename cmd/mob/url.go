package main

import (
	"fmt"
	"net/url"
	"strings"
)

// SinkTarget describes where a run's artifacts should land, parsed from a
// single destination URL (file:// vs s3://, credentials embedded in the
// URL). This is a small CLI-only helper; the core pipeline never sees a
// URL, only an already-opened sink.Sink.
type SinkTarget struct {
	Scheme string
	// Path is the local directory for file:// targets.
	Path string
	// Bucket, Prefix, and the credential pair apply to s3:// targets.
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
}

// ParseSinkURL parses a destination string of the form "file:///some/dir" or
// "s3://access:secret@bucket/prefix" into a SinkTarget.
func ParseSinkURL(raw string) (SinkTarget, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return SinkTarget{}, fmt.Errorf("unable to parse destination %q: %w", raw, err)
	}

	switch u.Scheme {
	case "file":
		return SinkTarget{Scheme: "file", Path: u.Path}, nil
	case "s3":
		target := SinkTarget{
			Scheme: "s3",
			Bucket: u.Host,
			Prefix: strings.TrimPrefix(u.Path, "/"),
		}
		if u.User != nil {
			target.AccessKey = u.User.Username()
			target.SecretKey, _ = u.User.Password()
		}
		return target, nil
	default:
		return SinkTarget{}, fmt.Errorf("unsupported destination scheme %q (want file:// or s3://)", u.Scheme)
	}
}
