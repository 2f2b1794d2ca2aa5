// Package frontmatter extracts the YAML metadata block that definition files
// carry between "---" delimiters at the top of the file. Absent or malformed
// blocks are reported as not-found rather than as errors so that callers can
// fall back to filename-derived defaults.
package frontmatter

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"

	"github.com/jingkaihe/agentdeck/pkg/logger"
)

const delimiter = "---"

// Parse locates the frontmatter block in content and returns it as a flat
// mapping. The second return value is false when the content does not begin
// with the delimiter, the closing delimiter is missing, the enclosed text is
// empty, or the block cannot be parsed as a YAML mapping. Parse performs no I/O.
func Parse(ctx context.Context, content []byte) (map[string]any, bool) {
	text := string(content)
	if !strings.HasPrefix(text, delimiter) {
		return nil, false
	}

	parts := strings.SplitN(text, delimiter, 3)
	if len(parts) < 3 {
		return nil, false
	}
	if strings.TrimSpace(parts[1]) == "" {
		return nil, false
	}

	md := goldmark.New(goldmark.WithExtensions(meta.Meta))

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		logger.G(ctx).WithError(err).Warn("Failed to parse frontmatter")
		return nil, false
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		logger.G(ctx).Warn("Frontmatter is not a YAML mapping, ignoring")
		return nil, false
	}

	return metaData, true
}
