package ifcb

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/meigma/ifcb/http"
	"github.com/meigma/ifcb/internal/bintype"
	"github.com/meigma/ifcb/internal/pixels"
)

// OpenURL opens a bin served over HTTP. base is the URL of the bin without
// an extension; the artifacts are fetched from base+".hdr", base+".adc" and
// base+".roi". The header and feature table are downloaded whole; pixels are
// read on demand with range requests, through the block cache if one is set
// with WithBlockCache.
//
// ctx bounds the downloads and the first range request for the pixel blob.
func OpenURL(ctx context.Context, base string, opts ...Option) (*Bin, error) {
	cfg := newConfig(opts)
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("ifcb: parse url: %w", err)
	}
	if cfg.lid == "" {
		cfg.lid = path.Base(u.Path)
	}

	httpOpts := []http.Option{http.WithLogger(cfg.logger)}
	if cfg.httpClient != nil {
		httpOpts = append(httpOpts, http.WithClient(cfg.httpClient))
	}
	artifactURL := func(a Artifact) string {
		v := *u
		v.Path = strings.TrimSuffix(u.Path, "/") + a.Ext()
		return v.String()
	}

	fetch := func(a Artifact) ([]byte, error) {
		src, err := http.NewSource(ctx, artifactURL(a), httpOpts...)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", a, err)
		}
		data, err := src.ReadAll(cfg.maxArtifactSize)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", a, err)
		}
		return data, nil
	}
	headerData, err := fetch(ArtifactHeader)
	if err != nil {
		return nil, err
	}
	tableData, err := fetch(ArtifactTable)
	if err != nil {
		return nil, err
	}

	var src Source
	src, err = http.NewSource(ctx, artifactURL(ArtifactBlob), httpOpts...)
	if err != nil {
		return nil, fmt.Errorf("open pixel blob: %w", err)
	}
	if cfg.blockCache != nil {
		if src, err = cfg.blockCache.Wrap(src); err != nil {
			return nil, err
		}
	}
	if cfg.serialized {
		src = pixels.Serialized(src)
	}

	b, err := load(headerData, tableData, pixels.NewHandle(src, nil), cfg)
	if err != nil {
		return nil, bintype.WithPaths(err, map[Artifact]string{
			ArtifactHeader: artifactURL(ArtifactHeader),
			ArtifactTable:  artifactURL(ArtifactTable),
			ArtifactBlob:   artifactURL(ArtifactBlob),
		})
	}
	return b, nil
}
