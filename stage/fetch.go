/*******************************************************************************
 * Copyright (c) 2026 Genome Research Ltd.
 *
 * Permission is hereby granted, free of charge, to any person obtaining
 * a copy of this software and associated documentation files (the
 * "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish,
 * distribute, sublicense, and/or sell copies of the Software, and to
 * permit persons to whom the Software is furnished to do so, subject to
 * the following conditions:
 *
 * The above copyright notice and this permission notice shall be included
 * in all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
 * EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
 * MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY
 * CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT,
 * TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 ******************************************************************************/

package stage

import (
	"context"
	"fmt"

	getter "github.com/hashicorp/go-getter"
)

// Fetcher downloads a single file from src to dst.
type Fetcher interface {
	Fetch(ctx context.Context, src, dst string) error
}

// GetterFetcher fetches with go-getter, so src may be an http(s), s3 or gcs
// URL, or a local path resolved against Pwd.
type GetterFetcher struct {
	Pwd string
}

func (g GetterFetcher) Fetch(ctx context.Context, src, dst string) error {
	client := &getter.Client{
		Ctx:     ctx,
		Src:     src,
		Dst:     dst,
		Pwd:     g.Pwd,
		Mode:    getter.ClientModeFile,
		Getters: getters(),
	}

	if err := client.Get(); err != nil {
		return fmt.Errorf("failed to fetch %s: %w", src, err)
	}

	return nil
}

// getters are go-getter's default getters, except that local files are
// copied rather than linked.
func getters() map[string]getter.Getter {
	gs := make(map[string]getter.Getter, len(getter.Getters))

	for scheme, g := range getter.Getters {
		gs[scheme] = g
	}

	gs["file"] = &getter.FileGetter{Copy: true}

	return gs
}
