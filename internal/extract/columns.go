package extract

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/prompts"
)

// ColumnRoles are the roles a header can be mapped to
var ColumnRoles = []string{
	"date", "description", "amount", "currency", "category",
	"type", "vendor", "debit", "credit",
}

// MapColumns asks the model which header plays which role. The result maps
// role to the header text as it appears in header.
func (e *Extractor) MapColumns(ctx context.Context, header []string) (map[string]string, error) {
	prompt, err := e.prompts.Render(prompts.MapColumns, struct {
		Roles  []string
		Header []string
	}{
		Roles:  ColumnRoles,
		Header: header,
	})
	if err != nil {
		return nil, err
	}

	raw, err := e.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	mapping, err := ParseColumnMap(raw, header)
	if err != nil {
		e.logger.Warn("Column mapping was not usable",
			zap.Strings("header", header),
			zap.String("raw", truncate(raw, 200)),
			zap.Error(err),
		)
		return nil, err
	}

	e.logger.Debug("Mapped columns", zap.Strings("header", header), zap.Any("mapping", mapping))
	return mapping, nil
}

// ParseColumnMap keeps known roles whose value names a header. Matching
// ignores case and surrounding space.
func ParseColumnMap(raw string, header []string) (map[string]string, error) {
	obj, err := DecodeObject(StripFence(raw))
	if err != nil {
		return nil, err
	}

	known := make(map[string]string, len(header))
	for _, h := range header {
		known[strings.ToLower(strings.TrimSpace(h))] = h
	}

	mapping := make(map[string]string)
	for _, role := range ColumnRoles {
		name, ok := stringField(obj, role)
		if !ok || name == "" {
			continue
		}
		if h, ok := known[strings.ToLower(name)]; ok {
			mapping[role] = h
		}
	}
	if len(mapping) == 0 {
		return nil, errors.New("no role matched a header")
	}
	return mapping, nil
}
