package config

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	cueCtx     *cue.Context
	schema     cue.Value
	schemaErr  error

	// A cue.Context is not safe for concurrent use.
	validateMu sync.Mutex
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		cueCtx = cuecontext.New()
		v := cueCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		schema = v.LookupPath(cue.ParsePath("#Config"))
		if err := schema.Err(); err != nil {
			schemaErr = fmt.Errorf("schema: %w", err)
		}
	})
	return cueCtx, schema, schemaErr
}

// Validate checks c against the configuration schema.
func Validate(c *Config) error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}
	validateMu.Lock()
	defer validateMu.Unlock()

	v := ctx.Encode(c)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", errors.Details(err, nil))
	}
	return nil
}
