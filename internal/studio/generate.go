package studio

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/infobmscommunity-ai/kohen-caption/internal/apperr"
	"github.com/infobmscommunity-ai/kohen-caption/internal/composer"
	"github.com/infobmscommunity-ai/kohen-caption/internal/generation"
	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
)

// Generator produces a caption for a composed prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (generation.Result, error)
}

// GenerationSources is the persistence of the generation screen.
type GenerationSources interface {
	ListCatalogItems(ctx context.Context, userID string) ([]storage.CatalogItem, error)
	ListStrategies(ctx context.Context, userID string) ([]storage.Strategy, error)
	ListBrains(ctx context.Context, userID string) ([]storage.Brain, error)
	CreateGeneratedCaption(ctx context.Context, userID string, f storage.GeneratedCaptionFields) (storage.GeneratedCaption, error)
}

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseGenerating Phase = "generating"
	PhaseSuccess    Phase = "success"
	PhaseError      Phase = "error"
)

// Selection is the user's current choice on the generation screen. Empty
// StrategyID and BrainID mean none.
type Selection struct {
	ProductID         string        `json:"product_id"`
	StrategyID        string        `json:"strategy_id"`
	BrainID           string        `json:"brain_id"`
	Tone              composer.Tone `json:"tone"`
	CustomInstruction string        `json:"custom_instruction"`
}

// NoBrain is the brain id a caller sends to opt out of the default persona.
const NoBrain = "none"

// ResolveBrain maps a requested brain id onto the loaded brains: empty picks
// the default (newest) persona and NoBrain picks none.
func (s GenerationState) ResolveBrain(id string) string {
	switch id {
	case "":
		if len(s.Brains) > 0 {
			return s.Brains[0].ID
		}
	case NoBrain:
		return ""
	}
	return id
}

// Caption is a saved generation result as displayed.
type Caption struct {
	storage.GeneratedCaption
	CopyText string `json:"copy_text"`
}

type GenerationState struct {
	Loading      bool                  `json:"loading"`
	Ready        bool                  `json:"ready"`
	EmptyCatalog bool                  `json:"empty_catalog"`
	Products     []storage.CatalogItem `json:"products"`
	Strategies   []storage.Strategy    `json:"strategies"`
	Brains       []storage.Brain       `json:"brains"`
	Selection    Selection             `json:"selection"`
	Phase        Phase                 `json:"phase"`
	Result       *Caption              `json:"result,omitempty"`
	Error        string                `json:"error,omitempty"`
	ErrorCode    string                `json:"error_code,omitempty"`
}

func initialGenerationState() GenerationState {
	return GenerationState{
		Products:   []storage.CatalogItem{},
		Strategies: []storage.Strategy{},
		Brains:     []storage.Brain{},
		Selection:  Selection{Tone: composer.DefaultTone},
		Phase:      PhaseIdle,
	}
}

type genActionKind int

const (
	genLoadStarted genActionKind = iota
	genLoaded
	genLoadFailed
	genSelected
	genStarted
	genSucceeded
	genFailed
	genCancelled
	genReset
)

type genAction struct {
	kind       genActionKind
	products   []storage.CatalogItem
	strategies []storage.Strategy
	brains     []storage.Brain
	selection  Selection
	productID  string
	result     *Caption
	err        *apperr.Error
}

// reduceGeneration returns the state after applying action. It never
// mutates s.
func reduceGeneration(s GenerationState, a genAction) GenerationState {
	switch a.kind {
	case genLoadStarted:
		s.Loading = true
		s.Ready = false
	case genLoaded:
		s.Loading = false
		s.Ready = true
		s.Products = append([]storage.CatalogItem{}, a.products...)
		s.Strategies = append([]storage.Strategy{}, a.strategies...)
		s.Brains = append([]storage.Brain{}, a.brains...)
		s.EmptyCatalog = len(a.products) == 0
		if s.Selection.BrainID == "" && len(a.brains) > 0 {
			s.Selection.BrainID = a.brains[0].ID
		}
		s.Error, s.ErrorCode = "", ""
	case genLoadFailed:
		s.Loading = false
		s.Error, s.ErrorCode = a.err.Message, a.err.Code
	case genSelected:
		sel := a.selection
		if sel.Tone == "" {
			sel.Tone = composer.DefaultTone
		}
		if sel.ProductID != s.Selection.ProductID {
			s.Result = nil
			if s.Phase == PhaseSuccess {
				s.Phase = PhaseIdle
			}
		}
		s.Selection = sel
	case genStarted:
		s.Phase = PhaseGenerating
		s.Error, s.ErrorCode = "", ""
	case genSucceeded:
		s.Phase = PhaseSuccess
		// A result for a product the user has since switched away from is
		// kept in history but not displayed.
		if a.productID == s.Selection.ProductID {
			s.Result = a.result
		} else {
			s.Phase = PhaseIdle
		}
	case genFailed:
		s.Phase = PhaseError
		s.Error, s.ErrorCode = a.err.Message, a.err.Code
	case genCancelled:
		s.Phase = PhaseIdle
	case genReset:
		return initialGenerationState()
	}
	return s
}

// GenerationScreen drives caption generation for one user. At most one
// generation is in flight at a time.
type GenerationScreen struct {
	sources GenerationSources
	gen     Generator
	userID  string
	onSaved func(storage.GeneratedCaption)

	mu      sync.Mutex
	state   GenerationState
	attempt int
	cancel  context.CancelFunc
}

// NewGenerationScreen creates the screen. onSaved, if not nil, is called after
// a caption was written to history.
func NewGenerationScreen(sources GenerationSources, gen Generator, userID string, onSaved func(storage.GeneratedCaption)) *GenerationScreen {
	return &GenerationScreen{
		sources: sources,
		gen:     gen,
		userID:  userID,
		onSaved: onSaved,
		state:   initialGenerationState(),
	}
}

func (g *GenerationScreen) State() GenerationState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *GenerationScreen) dispatch(a genAction) {
	g.mu.Lock()
	g.state = reduceGeneration(g.state, a)
	g.mu.Unlock()
}

// Mount loads products, strategies and brains concurrently and becomes ready
// once all three arrived.
func (g *GenerationScreen) Mount(ctx context.Context) error {
	g.dispatch(genAction{kind: genLoadStarted})

	var (
		products   []storage.CatalogItem
		strategies []storage.Strategy
		brains     []storage.Brain
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		products, err = g.sources.ListCatalogItems(egCtx, g.userID)
		return err
	})
	eg.Go(func() (err error) {
		strategies, err = g.sources.ListStrategies(egCtx, g.userID)
		return err
	})
	eg.Go(func() (err error) {
		brains, err = g.sources.ListBrains(egCtx, g.userID)
		return err
	})
	if err := eg.Wait(); err != nil {
		aerr := persistenceErr(err, "Data", MsgLoadFailed)
		slog.Error("loading generation sources failed", "user_id", g.userID, "error", err)
		g.dispatch(genAction{kind: genLoadFailed, err: aerr})
		return aerr
	}

	g.dispatch(genAction{kind: genLoaded, products: products, strategies: strategies, brains: brains})
	slog.Debug("generation screen ready",
		"user_id", g.userID,
		"products", len(products),
		"strategies", len(strategies),
		"brains", len(brains),
	)
	return nil
}

// Select replaces the selection. Switching product clears the displayed result.
func (g *GenerationScreen) Select(sel Selection) {
	g.dispatch(genAction{kind: genSelected, selection: sel})
}

// Generate composes the prompt for the current selection, calls the
// generator and saves the result to history. A second call while one is in
// flight fails with CodeBusy. On failure the previous result stays displayed.
func (g *GenerationScreen) Generate(ctx context.Context) (*Caption, error) {
	g.mu.Lock()
	if g.state.Phase == PhaseGenerating {
		g.mu.Unlock()
		return nil, apperr.New(apperr.KindConflict, CodeBusy, MsgBusy)
	}
	in, snapshot, rerr := resolveInput(g.state)
	if rerr != nil {
		g.state = reduceGeneration(g.state, genAction{kind: genFailed, err: rerr})
		g.mu.Unlock()
		return nil, rerr
	}
	genCtx, cancel := context.WithCancel(ctx)
	g.attempt++
	attempt := g.attempt
	g.cancel = cancel
	productID := g.state.Selection.ProductID
	g.state = reduceGeneration(g.state, genAction{kind: genStarted})
	g.mu.Unlock()
	defer cancel()

	prompt := composer.Compose(in)
	slog.Debug("generating caption",
		"user_id", g.userID,
		"product_id", productID,
		"tone", in.Tone.Key(),
		"prompt_tokens", composer.EstimateTokens(prompt),
	)

	res, err := g.gen.Generate(genCtx, prompt)
	var saved storage.GeneratedCaption
	if err == nil {
		snapshot.GeneratedCaption = res.Caption
		snapshot.Hashtags = res.Hashtags
		saved, err = g.sources.CreateGeneratedCaption(genCtx, g.userID, snapshot)
		if err != nil {
			slog.Error("saving generated caption failed", "user_id", g.userID, "error", err)
			err = apperr.Persistence(MsgSaveFailed, err)
		}
	}

	var result *Caption
	if err == nil {
		result = &Caption{GeneratedCaption: saved, CopyText: CopyText(saved)}
	}

	g.mu.Lock()
	// After Unmount the outcome is not shown; the screen was reset.
	if attempt == g.attempt {
		g.cancel = nil
		cancelled := genCtx.Err() != nil && ctx.Err() == nil
		switch {
		case err != nil && cancelled:
			g.state = reduceGeneration(g.state, genAction{kind: genCancelled})
		case err != nil:
			g.state = reduceGeneration(g.state, genAction{kind: genFailed, err: toGenerationErr(err)})
		default:
			g.state = reduceGeneration(g.state, genAction{kind: genSucceeded, productID: productID, result: result})
		}
	}
	g.mu.Unlock()

	if err != nil {
		return nil, toGenerationErr(err)
	}
	slog.Info("caption generated", "user_id", g.userID, "caption_id", saved.ID)
	if g.onSaved != nil {
		g.onSaved(saved)
	}
	return result, nil
}

// Preview returns the prompt Generate would send for sel, without calling
// the generator. The screen must be mounted.
func (g *GenerationScreen) Preview(sel Selection) (string, error) {
	s := g.State()
	s.Selection = sel
	in, _, err := resolveInput(s)
	if err != nil {
		return "", err
	}
	return composer.Compose(in), nil
}

// Cancel aborts the in-flight generation, if any.
func (g *GenerationScreen) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
}

// Unmount cancels any in-flight generation and resets the screen. Results
// arriving afterwards are discarded.
func (g *GenerationScreen) Unmount() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.attempt++
	g.state = reduceGeneration(g.state, genAction{kind: genReset})
}

// resolveInput builds the composer input and the history snapshot for the
// current selection.
func resolveInput(s GenerationState) (composer.Input, storage.GeneratedCaptionFields, *apperr.Error) {
	sel := s.Selection
	if sel.ProductID == "" {
		return composer.Input{}, storage.GeneratedCaptionFields{}, apperr.Validation(MsgSelectProduct)
	}
	product, ok := findByID(s.Products, sel.ProductID, func(p storage.CatalogItem) string { return p.ID })
	if !ok {
		return composer.Input{}, storage.GeneratedCaptionFields{}, apperr.NotFound(CatalogMessages.Resource)
	}

	tone := sel.Tone
	if tone == "" {
		tone = composer.DefaultTone
	}
	in := composer.Input{
		Product: composer.Product{
			StoreName:   product.StoreName,
			ProductName: product.ProductName,
			Link:        product.ProductLink,
			Description: product.Description,
		},
		Tone:              tone,
		CustomInstruction: sel.CustomInstruction,
	}
	snapshot := storage.GeneratedCaptionFields{
		StoreName:   product.StoreName,
		ProductName: product.ProductName,
		ProductLink: product.ProductLink,
		Tone:        string(tone),
	}

	// Unknown strategy or brain ids, e.g. deleted meanwhile, count as none.
	if st, ok := findByID(s.Strategies, sel.StrategyID, func(x storage.Strategy) string { return x.ID }); ok {
		in.Strategy = &composer.Strategy{Title: st.Title, Hook: st.Hook, Example: st.Example}
		snapshot.StrategyTitle = st.Title
	}
	if b, ok := findByID(s.Brains, sel.BrainID, func(x storage.Brain) string { return x.ID }); ok {
		in.BrainInstruction = b.Instruction
	}
	return in, snapshot, nil
}

func findByID[T any](items []T, id string, key func(T) string) (T, bool) {
	var zero T
	if id == "" {
		return zero, false
	}
	for _, it := range items {
		if key(it) == id {
			return it, true
		}
	}
	return zero, false
}

func toGenerationErr(err error) *apperr.Error {
	if e, ok := apperr.As(err); ok {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindGeneration, generation.CodeNetwork, generation.FailureMessage, err)
	}
	return apperr.Wrap(apperr.KindGeneration, generation.CodeRejected, generation.FailureMessage, err)
}
