package proxy

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nikmy/mongotx/internal/driver"
)

type Database struct {
	db     driver.Database
	router *Router
}

func (d *Database) Name() string {
	return d.db.Name()
}

func (d *Database) Collection(name string) *Collection {
	return d.router.Collection(d.db.Collection(name))
}

func (d *Database) RunCommand(ctx context.Context, cmd any) *mongo.SingleResult {
	h, err := d.router.resolve(ctx, Descriptor{Op: "runCommand", Namespace: d.db.Name(), Payload: cmd})
	if err != nil {
		return errorResult(err)
	}
	if h == nil {
		return d.db.RunCommand(ctx, cmd)
	}

	b := binding{h: h, tracker: d.router.tracker}
	ctx, err = b.bind(ctx)
	if err != nil {
		return errorResult(err)
	}
	defer b.observe()

	return d.db.RunCommand(ctx, cmd)
}
