package theme

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"pulsequiz/internal/ai"
)

const drafterSystem = "You are a UI theme designer. Reply with JSON only, no prose."

// Drafter asks the text-generation collaborator for a theme spec and
// caches results by prompt with a TTL, so a room full of hosts asking for
// "halloween vibes" costs one upstream call.
type Drafter struct {
	gen   ai.Generator
	ttl   time.Duration
	clock clockwork.Clock
	sf    singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedSpec
}

type cachedSpec struct {
	spec      Spec
	expiresAt time.Time
}

func NewDrafter(gen ai.Generator, ttl time.Duration) *Drafter {
	return NewDrafterWithClock(gen, ttl, clockwork.NewRealClock())
}

func NewDrafterWithClock(gen ai.Generator, ttl time.Duration, clock clockwork.Clock) *Drafter {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Drafter{
		gen:   gen,
		ttl:   ttl,
		clock: clock,
		cache: make(map[string]cachedSpec),
	}
}

// Draft produces a validated theme spec for a free-text vibe description.
func (d *Drafter) Draft(ctx context.Context, vibe string) (Spec, error) {
	key := strings.ToLower(strings.TrimSpace(vibe))

	now := d.clock.Now()
	d.mu.RLock()
	if entry, ok := d.cache[key]; ok && entry.expiresAt.After(now) {
		d.mu.RUnlock()
		return entry.spec, nil
	}
	d.mu.RUnlock()

	result, err, _ := d.sf.Do(key, func() (interface{}, error) {
		now := d.clock.Now()
		d.mu.RLock()
		if entry, ok := d.cache[key]; ok && entry.expiresAt.After(now) {
			d.mu.RUnlock()
			return entry.spec, nil
		}
		d.mu.RUnlock()

		spec, err := d.draftUncached(ctx, vibe)
		if err != nil {
			return Spec{}, err
		}

		d.mu.Lock()
		d.cache[key] = cachedSpec{spec: spec, expiresAt: now.Add(d.ttl)}
		d.mu.Unlock()
		return spec, nil
	})
	if err != nil {
		return Spec{}, err
	}
	return result.(Spec), nil
}

func (d *Drafter) draftUncached(ctx context.Context, vibe string) (Spec, error) {
	base, _ := ByID(DefaultThemeID)
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return Spec{}, err
	}

	prompt := fmt.Sprintf(
		"Design a quiz UI theme matching this vibe: %q.\nStart from this JSON and adjust palette, typography, density, components, motion and motifs. Font keys: system, humanist, display, mono, serif. Density: compact or comfortable. Motion: none, subtle or active. Motifs: snow, scanlines, confetti, pumpkin or omit. All colors #rrggbb with readable text contrast.\n%s",
		vibe, baseJSON,
	)
	resp, err := d.gen.Generate(ctx, ai.Request{Prompt: prompt, System: drafterSystem})
	if err != nil {
		return Spec{}, err
	}

	var spec Spec
	if err := json.Unmarshal([]byte(ai.ExtractJSON(resp.Text)), &spec); err != nil {
		return Spec{}, fmt.Errorf("%w: unparseable theme: %v", ai.ErrUnavailable, err)
	}
	spec = Normalize(spec)
	if issues := Validate(spec); len(issues) > 0 {
		return Spec{}, fmt.Errorf("%w: drafted theme rejected: %s", ai.ErrUnavailable, strings.Join(issues, "; "))
	}
	return spec, nil
}

// Normalize backfills a drafted spec with defaults so one omitted field
// does not waste an otherwise good draft.
func Normalize(spec Spec) Spec {
	base, _ := ByID(DefaultThemeID)

	fallback := func(value *string, def string) {
		if *value == "" {
			*value = def
		}
	}
	fallback(&spec.Palette.Background, base.Palette.Background)
	fallback(&spec.Palette.Surface, base.Palette.Surface)
	fallback(&spec.Palette.Text, base.Palette.Text)
	fallback(&spec.Palette.Accent, base.Palette.Accent)
	fallback(&spec.Palette.Accent2, base.Palette.Accent2)
	fallback(&spec.Palette.Border, base.Palette.Border)
	fallback(&spec.Typography.FontFamily, base.Typography.FontFamily)
	fallback(&spec.Density, base.Density)
	fallback(&spec.Components.Button, base.Components.Button)
	fallback(&spec.Components.Card, base.Components.Card)
	fallback(&spec.Components.Table, base.Components.Table)
	fallback(&spec.Motion, base.Motion)

	if spec.Typography.Weights == nil {
		spec.Typography.Weights = map[string]int{}
	}
	for label, def := range base.Typography.Weights {
		if _, ok := spec.Typography.Weights[label]; !ok {
			spec.Typography.Weights[label] = def
		}
	}
	if spec.Typography.Scale == nil {
		spec.Typography.Scale = map[string]float64{}
	}
	for label, def := range base.Typography.Scale {
		if _, ok := spec.Typography.Scale[label]; !ok {
			spec.Typography.Scale[label] = def
		}
	}
	if !validMotifs[spec.Motifs] {
		spec.Motifs = ""
	}
	return spec
}
