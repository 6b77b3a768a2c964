package scenario

import (
	"context"
	"net/http"

	"github.com/wesleyorama2/hello-load/internal/performance"
)

// ExpectedBody is the text a correct response contains.
const ExpectedBody = "Hello world"

// Check names reported in the summary.
const (
	CheckStatus = "status is 200"
	CheckBody   = "response body is correct"
)

// HelloURL returns the URL requested by each iteration.
func HelloURL(endpoint string) string {
	return endpoint + "/hello"
}

// Iteration returns the scenario body: one GET of {endpoint}/hello
// followed by the status and body checks.
func Iteration(endpoint string) performance.IterationFunc {
	url := HelloURL(endpoint)

	return func(ctx context.Context, vu *performance.VirtualUser) {
		res := vu.Get(ctx, url)
		vu.Check(res,
			performance.StatusIs(http.StatusOK),
			performance.BodyContains(CheckBody, ExpectedBody),
		)
	}
}
