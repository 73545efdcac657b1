package executor

import (
	"context"
	"errors"

	"github.com/dukex/actflow/pkg/models"
)

const defaultQueryOutput = "records"

var errNoStores = errors.New("query node has no connected vector store")

func (d *Dispatcher) runQuery(ctx context.Context, c call, content models.QueryContent) (outcome, error) {
	stores := c.resolve.stores()
	if len(stores) == 0 {
		return outcome{}, configError(c.step.Node.ID, errNoStores)
	}

	query, err := c.resolve.render(ctx, content.Query)
	if err != nil {
		return outcome{}, err
	}

	err = d.checkUsage(ctx, c)
	if err != nil {
		return outcome{}, err
	}

	res, err := d.queries.Query(ctx, QueryRequest{
		GenerationID: c.generation.ID,
		Query:        query,
		Limit:        content.Limit,
		Stores:       stores,
	})
	if err != nil {
		return outcome{}, stepError("QueryError", err)
	}

	port := outputPorts(c.step.Node, defaultQueryOutput)[0]

	return outcome{
		outputs: []models.GenerationOutput{{OutputID: port.ID, Type: models.OutputTypeQueryResult, Records: res.Records}},
		usage:   res.Usage,
	}, nil
}
