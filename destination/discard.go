package destination

import (
	"context"
)

// Discard drops payloads. Used for dry runs.
type Discard struct{}

func (d *Discard) Write(ctx context.Context, p *Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	return "discard://" + p.Name(), nil
}

func (d *Discard) Close() error {
	return nil
}
