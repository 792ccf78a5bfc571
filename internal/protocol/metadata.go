package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ResourceTag identifies a replicated resource.
type ResourceTag uint8

const ResourceServerMetadata ResourceTag = 1

// ServerMetadata describes the server process to clients.
type ServerMetadata struct {
	Location  string `msgpack:"loc"`
	FQDN      string `msgpack:"fqdn"`
	BuildInfo string `msgpack:"build"`
}

// NewMetadataResource wraps md for the resource channel.
func NewMetadataResource(md ServerMetadata) (Resource, error) {
	b, err := msgpack.Marshal(md)
	if err != nil {
		return Resource{}, fmt.Errorf("encode server metadata: %w", err)
	}
	return Resource{Tag: ResourceServerMetadata, Bytes: b}, nil
}

// DecodeMetadata reads a ServerMetadata resource.
func DecodeMetadata(r Resource) (ServerMetadata, error) {
	var md ServerMetadata
	if r.Tag != ResourceServerMetadata {
		return md, fmt.Errorf("%w: resource tag %d is not server metadata", ErrMalformed, r.Tag)
	}
	if err := msgpack.Unmarshal(r.Bytes, &md); err != nil {
		return md, fmt.Errorf("%w: server metadata: %v", ErrMalformed, err)
	}
	return md, nil
}
