package migrate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docalist/migration-prisme-2015/internal/record"
	"github.com/docalist/migration-prisme-2015/internal/report"
	"github.com/docalist/migration-prisme-2015/internal/schema"
	"github.com/docalist/migration-prisme-2015/internal/store"
	"github.com/docalist/migration-prisme-2015/internal/util"
)

// DefaultBatchSize is the number of posts loaded per query.
const DefaultBatchSize = 1000

// DefaultProgressEvery is the number of converted posts between two
// progress notifications.
const DefaultProgressEvery = 100

// ErrTooManyFailures stops a conversion when a whole batch is made of posts
// that already failed: the remaining posts cannot be reached.
var ErrTooManyFailures = errors.New("too many posts could not be converted")

// Conversion rewrites the posts of a legacy reference database
// (<legacy prefix><name>) as records of the current database
// (<current prefix><name>), in place.
type Conversion struct {
	records       RecordStore
	catalog       SchemaCatalog
	legacyPrefix  string
	currentPrefix string
	batchSize     int
	progressEvery int
	journal       *report.EventLogger
}

// ConversionConfig holds the prefixes and sizes of a conversion.
type ConversionConfig struct {
	LegacyPrefix  string // e.g. "dclref"
	CurrentPrefix string // e.g. "db"
	BatchSize     int    // defaults to DefaultBatchSize
	ProgressEvery int    // defaults to DefaultProgressEvery
}

// NewConversion creates the conversion tool. journal may be nil.
func NewConversion(records RecordStore, catalog SchemaCatalog, cfg ConversionConfig, journal *report.EventLogger) (*Conversion, error) {
	if cfg.LegacyPrefix == "" || cfg.CurrentPrefix == "" {
		return nil, fmt.Errorf("legacy and current prefixes are required: %w", util.ErrInvalidConfig)
	}
	if cfg.LegacyPrefix == cfg.CurrentPrefix {
		return nil, fmt.Errorf("legacy and current prefixes must differ: %w", util.ErrInvalidConfig)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	return &Conversion{
		records:       records,
		catalog:       catalog,
		legacyPrefix:  cfg.LegacyPrefix,
		currentPrefix: cfg.CurrentPrefix,
		batchSize:     cfg.BatchSize,
		progressEvery: cfg.ProgressEvery,
		journal:       journal,
	}, nil
}

// Choice is a legacy database that can be converted.
type Choice struct {
	PostType string
	Base     string
	Count    int
}

// Choices lists the legacy post types present in the store, with their
// number of posts. An empty list means there is nothing to convert.
func (c *Conversion) Choices(ctx context.Context) ([]Choice, error) {
	counts, err := c.records.CountPostTypes(ctx, store.TypeMatch{Prefix: c.legacyPrefix})
	if err != nil {
		return nil, err
	}
	choices := make([]Choice, 0, len(counts))
	for _, tc := range counts {
		choices = append(choices, Choice{
			PostType: tc.PostType,
			Base:     strings.TrimPrefix(tc.PostType, c.legacyPrefix),
			Count:    tc.Count,
		})
	}
	return choices, nil
}

// Destination returns the post type a legacy post type is converted to.
func (c *Conversion) Destination(postType string) string {
	return c.currentPrefix + strings.TrimPrefix(postType, c.legacyPrefix)
}

// Validate checks that postType can be converted and returns its number of
// posts. The post type must start with the legacy prefix, have posts, and
// its destination must be empty.
func (c *Conversion) Validate(ctx context.Context, postType string) (int, error) {
	if !strings.HasPrefix(postType, c.legacyPrefix) || postType == c.legacyPrefix {
		return 0, fmt.Errorf("post type %q does not start with %q: %w", postType, c.legacyPrefix, util.ErrValidation)
	}
	count, err := c.records.CountPostsByType(ctx, postType)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, fmt.Errorf("there are no posts of type %q: %w", postType, util.ErrValidation)
	}
	dest := c.Destination(postType)
	existing, err := c.records.CountPostsByType(ctx, dest)
	if err != nil {
		return 0, err
	}
	if existing != 0 {
		return 0, fmt.Errorf("there are already %d posts of type %q: %w", existing, dest, util.ErrValidation)
	}
	return count, nil
}

// ConvertResult is the outcome of a conversion.
type ConvertResult struct {
	PostType    string
	Destination string
	Expected    int
	Converted   int
	Failed      int
	Anomalies   int
	Duration    time.Duration
}

// Convert validates postType then converts all its posts. Posts are read in
// ascending id order, batch by batch, each batch being the first posts still
// carrying the legacy type. Every post is decoded with the grids of every
// registered record type, upgraded, normalized, encoded, and only the
// changed columns plus the new post_type are written back.
//
// A post that cannot be decoded is left as is and counted as failed. An
// update that does not affect exactly one row is logged and the conversion
// goes on. progress, when not nil, is called every ProgressEvery converted
// posts. The result is returned even when an error stops the conversion.
func (c *Conversion) Convert(ctx context.Context, postType string, progress func(converted int)) (*ConvertResult, error) {
	start := time.Now()
	result := &ConvertResult{PostType: postType, Destination: c.Destination(postType)}

	count, err := c.Validate(ctx, postType)
	if err != nil {
		return result, err
	}
	result.Expected = count

	settings, err := schema.NewDatabaseWithAllTypes(strings.TrimPrefix(postType, c.legacyPrefix), c.catalog)
	if err != nil {
		return result, err
	}
	db := record.NewDatabase(settings, result.Destination, c.catalog)

	util.InfoLog("Convert: %d posts of type %s to convert to %s", count, postType, result.Destination)

	// Posts left with the legacy type come back at the head of every
	// following batch.
	leftBehind := make(map[int64]bool)
	repeated := 0

	defer func() {
		result.Duration = time.Since(start)
	}()

	for post, err := range c.records.PostsOfType(ctx, postType, c.batchSize) {
		if err != nil {
			return result, err
		}

		id := post.ID()
		if leftBehind[id] {
			repeated++
			if repeated < c.batchSize {
				continue
			}
			remaining, err := c.records.CountPostsByType(ctx, postType)
			if err != nil {
				return result, err
			}
			if remaining > len(leftBehind) {
				return result, fmt.Errorf("%d posts of type %s left unconverted: %w", remaining, postType, ErrTooManyFailures)
			}
			break
		}
		repeated = 0

		diff, err := c.convertPost(db, post)
		if err != nil {
			util.WarnLog("Convert: post %d skipped: %v", id, err)
			c.journal.LogSkip(id, err.Error())
			leftBehind[id] = true
			result.Failed++
			continue
		}

		res, err := c.records.UpdatePost(ctx, id, diff)
		if err != nil {
			c.journal.LogError(report.EventConvert, "post "+strconv.FormatInt(id, 10), err)
			return result, err
		}
		if err := res.Check(id); err != nil {
			util.ErrorLog("Convert: %v: %s", err, res.Query)
			c.journal.LogAnomaly(id, res.Affected, res.Query)
			result.Anomalies++
			if res.Affected == 0 {
				leftBehind[id] = true
			}
		}
		c.journal.LogConvert(id, result.Destination, len(diff))

		result.Converted++
		if progress != nil && result.Converted%c.progressEvery == 0 {
			progress(result.Converted)
		}
	}

	c.journal.LogSummary(int64(result.Converted), time.Since(start), map[string]string{
		"post_type":   postType,
		"destination": result.Destination,
		"failed":      strconv.Itoa(result.Failed),
		"anomalies":   strconv.Itoa(result.Anomalies),
	})
	util.InfoLog("Convert: %d posts converted to %s", result.Converted, result.Destination)
	return result, nil
}

// convertPost returns the columns to write for one legacy post.
func (c *Conversion) convertPost(db *record.Database, post store.Post) (map[string]string, error) {
	rec, err := db.FromPost(post)
	if err != nil {
		return nil, err
	}

	// 2015 references had no title field, only the post title.
	if db.IsReference(rec) && rec.String("title") == "" {
		rec.Set("title", rec.String("posttitle"))
	}

	db.BeforeSave(rec)

	encoded, err := db.Encode(rec)
	if err != nil {
		return nil, err
	}
	diff := record.Diff(post, encoded)
	diff["post_type"] = db.PostType()
	return diff, nil
}
