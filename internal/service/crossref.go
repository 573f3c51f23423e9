package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"annotation-xref/internal/config"
	"annotation-xref/internal/models"
	"annotation-xref/internal/obsidian"
	"annotation-xref/internal/report"

	"go.uber.org/zap"
)

// Profiles picks the vault a run searches
type Profiles interface {
	Resolve(override string) (models.Profile, bool)
}

// Selector reads the items a run starts from
type Selector interface {
	Selection(ctx context.Context, refs []string) ([]*models.Item, error)
}

// Extractor collects annotation keys per attachment
type Extractor interface {
	Extract(ctx context.Context, selection []*models.Item) (*models.Entries, error)
}

// Resolver finds the vault documents mentioning each key
type Resolver interface {
	Resolve(ctx context.Context, keys []string) *models.Resolution
}

// ResolverFactory builds a resolver for one profile
type ResolverFactory func(profile models.Profile) (Resolver, error)

// Tagger writes the provenance tags of one entry
type Tagger interface {
	Apply(ctx context.Context, entry *models.Entry, tags []models.Tag) error
}

// Request for one cross-reference run
type Request struct {
	Items   []string `json:"items"`
	Profile string   `json:"profile"`
}

// Result of a cross-reference run
type Result struct {
	Report      string                          `json:"report"`
	Profile     string                          `json:"profile"`
	Order       []models.EntryID                `json:"order"`
	TagsByEntry map[models.EntryID][]models.Tag `json:"tags"`
	Warnings    []string                        `json:"warnings"`
	Entries     int                             `json:"entries"`
	Keys        int                             `json:"keys"`
	Failed      int                             `json:"failed_searches"`
	Tagged      int                             `json:"tagged_entries"`
}

// CrossReferencer runs the selection → extract → resolve → report → tag pipeline
type CrossReferencer struct {
	profiles    Profiles
	selector    Selector
	extractor   Extractor
	newResolver ResolverFactory
	tagger      Tagger
	logger      *zap.Logger
	now         func() time.Time
}

// NewCrossReferencer creates a new cross-referencer
func NewCrossReferencer(
	profiles Profiles,
	selector Selector,
	extractor Extractor,
	newResolver ResolverFactory,
	tagger Tagger,
	logger *zap.Logger,
) *CrossReferencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrossReferencer{
		profiles:    profiles,
		selector:    selector,
		extractor:   extractor,
		newResolver: newResolver,
		tagger:      tagger,
		logger:      logger,
		now:         time.Now,
	}
}

// ObsidianResolvers builds Obsidian clients from the search settings
func ObsidianResolvers(cfg *config.Config, logger *zap.Logger) ResolverFactory {
	return func(profile models.Profile) (Resolver, error) {
		client, err := obsidian.NewClient(obsidian.Config{
			BaseURL:            profile.BaseURL,
			Token:              profile.Token,
			Vault:              profile.Name,
			Timeout:            cfg.Search.Timeout,
			RequestsPerMinute:  cfg.Search.RequestsPerMinute,
			InsecureSkipVerify: cfg.Search.InsecureSkipVerify,
		}, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Run cross-references the selected items against one vault and tags them.
// Only a bad configuration or an unreadable selection fails the run; every
// later problem is logged and reported in Result.Warnings.
func (c *CrossReferencer) Run(ctx context.Context, req Request) (*Result, error) {
	profile, ok := c.profiles.Resolve(req.Profile)
	result := &Result{
		Profile:     profile.Name,
		TagsByEntry: map[models.EntryID][]models.Tag{},
		Warnings:    []string{},
	}
	if !ok {
		c.logger.Warn("Unknown profile, using default",
			zap.String("requested", req.Profile),
			zap.String("profile", profile.Name))
		result.warn(fmt.Sprintf("unknown profile %q, using %s", req.Profile, profile.Name))
	}

	selection, err := c.selector.Selection(ctx, req.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to read selection: %w", err)
	}
	if len(selection) == 0 {
		c.logger.Info("Nothing selected")
		return result, nil
	}

	resolver, resolverErr := c.newResolver(profile)
	if resolverErr != nil {
		c.logger.Warn("Failed to create resolver",
			zap.String("profile", profile.Name),
			zap.Error(resolverErr))
		result.warn(fmt.Sprintf("failed to create resolver for %s: %v", profile.Name, resolverErr))
	}

	entries, err := c.extractor.Extract(ctx, selection)
	if err != nil {
		result.warn(splitErrors(err)...)
	}
	if entries == nil {
		entries = models.NewEntries()
	}

	keys := entries.Universe()
	resolution := models.NewResolution()
	switch {
	case len(keys) == 0:
	case resolverErr != nil:
		// no vault to search, so every key fails with the same error
		for _, key := range keys {
			resolution.Documents[key] = []string{}
			resolution.Failures[key] = resolverErr
		}
	default:
		resolution = resolver.Resolve(ctx, keys)
		for _, key := range keys {
			if ferr := resolution.Failures[key]; ferr != nil {
				result.warn(fmt.Sprintf("search for %s failed: %v", key, ferr))
			}
		}
	}

	rep := report.Build(entries.List(), resolution, c.now().UTC(), profile.Name)

	result.Report = rep.Text
	result.Order = rep.Order
	result.TagsByEntry = rep.TagsByEntry
	result.Entries = entries.Len()
	result.Keys = len(keys)
	result.Failed = len(resolution.Failures)

	for _, id := range rep.Order {
		entry, ok := entries.Get(id)
		if !ok {
			continue
		}
		if err := c.tagger.Apply(ctx, entry, rep.TagsByEntry[id]); err != nil {
			c.logger.Warn("Failed to tag entry",
				zap.String("entry", string(id)),
				zap.String("label", entry.Label),
				zap.Error(err))
			result.warn(err.Error())
			continue
		}
		if entry.Attachment != nil {
			result.Tagged++
		}
	}

	c.logger.Info("Cross-reference complete",
		zap.String("profile", profile.Name),
		zap.Int("entries", result.Entries),
		zap.Int("keys", result.Keys),
		zap.Int("failed_searches", result.Failed),
		zap.Int("tagged", result.Tagged),
		zap.Int("warnings", len(result.Warnings)))

	return result, nil
}

func (r *Result) warn(msgs ...string) {
	r.Warnings = append(r.Warnings, msgs...)
}

// splitErrors flattens a joined error into one message per failure
func splitErrors(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, splitErrors(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
