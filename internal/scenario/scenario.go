// Package scenario exercises a deployment end to end through the template:
// a causally consistent read of an own write, and a transaction whose
// commit may be retried.
package scenario

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nikmy/mongotx/internal/session"
	"github.com/nikmy/mongotx/internal/template"
	"github.com/nikmy/mongotx/pkg/errors"
	"github.com/nikmy/mongotx/pkg/logger"
	"github.com/nikmy/mongotx/pkg/mongotools"
)

const defaultCollection = "mongotx_scenarios"

var ErrNotVisible = errors.Error("own write is not visible")

type probe struct {
	ID    string    `bson:"_id"`
	Kind  string    `bson:"kind"`
	Stamp time.Time `bson:"stamp"`
}

type Report struct {
	Name string
	Took time.Duration
	Err  error
}

type Runner struct {
	tpl        *template.Template
	collection string
	log        logger.Logger
}

func New(tpl *template.Template, collection string, log logger.Logger) *Runner {
	if collection == "" {
		collection = defaultCollection
	}
	return &Runner{
		tpl:        tpl,
		collection: collection,
		log:        log.With("scenario"),
	}
}

// Run executes every scenario in order and reports each of them. It stops
// early only when ctx is done.
func (r *Runner) Run(ctx context.Context) []Report {
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"read_your_writes", r.ReadYourWrites},
		{"commit_retry", r.CommitRetry},
	}

	reports := make([]Report, 0, len(steps))
	for _, s := range steps {
		if ctx.Err() != nil {
			break
		}

		start := time.Now()
		err := s.run(ctx)
		reports = append(reports, Report{Name: s.name, Took: time.Since(start), Err: err})

		if err != nil {
			r.log.Warn(errors.WrapFailf(err, "run scenario %s", s.name))
		} else {
			r.log.Infof("scenario %s passed", s.name)
		}
	}
	return reports
}

// ReadYourWrites inserts a document and reads it back in the same causally
// consistent session.
func (r *Runner) ReadYourWrites(ctx context.Context) error {
	src := template.Opened(session.Options{CausalConsistency: true})
	return r.tpl.WithSession(src).Execute(ctx, func(ctx context.Context, tpl *template.Template) error {
		p := probe{ID: uuid.NewString(), Kind: "read_your_writes", Stamp: time.Now().UTC()}

		coll := tpl.Collection(r.collection)
		_, err := coll.InsertOne(ctx, p)
		if err != nil {
			return errors.WrapFail(err, "insert probe")
		}

		err = r.lookup(ctx, tpl, p.ID)
		if err != nil {
			return err
		}

		_, err = coll.DeleteOne(ctx, mongotools.FilterByID(p.ID))
		return errors.WrapFail(err, "delete probe")
	})
}

// CommitRetry writes in a transaction and then checks the write from a new
// causal session that starts after the commit.
func (r *Runner) CommitRetry(ctx context.Context) error {
	p := probe{ID: uuid.NewString(), Kind: "commit_retry", Stamp: time.Now().UTC()}

	var committedAt *session.Handle
	err := r.tpl.InTransaction(ctx, func(ctx context.Context, tpl *template.Template) error {
		committedAt, _ = tpl.Store().Current(ctx)
		_, err := tpl.Collection(r.collection).InsertOne(ctx, p)
		return err
	})
	if err != nil {
		return errors.WrapFail(err, "commit probe")
	}

	src := template.Opened(session.Options{CausalConsistency: true})
	return r.tpl.WithSession(src).Execute(ctx, func(ctx context.Context, tpl *template.Template) error {
		if h, ok := tpl.Store().Current(ctx); ok && committedAt != nil {
			h.Advance(committedAt.OperationTime(), committedAt.ClusterTime())
		}

		err := r.lookup(ctx, tpl, p.ID)
		if err != nil {
			return err
		}

		_, err = tpl.Collection(r.collection).DeleteOne(ctx, mongotools.FilterByID(p.ID))
		return errors.WrapFail(err, "delete probe")
	})
}

func (r *Runner) lookup(ctx context.Context, tpl *template.Template, id string) error {
	var got probe
	err := tpl.Collection(r.collection).FindOne(ctx, mongotools.FilterByID(id)).Decode(&got)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return errors.Wrapf(ErrNotVisible, "probe %s", id)
	}
	return errors.WrapFailf(err, "find probe %s", id)
}
