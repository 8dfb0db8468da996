package mongodb

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nivwer/mdb-singleton/resource"
)

var (
	errEmptyURI  = errors.New("connection string is empty")
	errBadScheme = errors.New(`connection string must begin with "mongodb://" or "mongodb+srv://"`)
)

func hasMongoScheme(uri string) bool {
	return strings.HasPrefix(uri, "mongodb://") || strings.HasPrefix(uri, "mongodb+srv://")
}

// classifyOptions maps a ClientOptions validation error. URI parse failures
// are invalid-URI; everything else (bad auth mechanism, conflicting options)
// is a configuration error.
func classifyOptions(err error) error {
	if strings.Contains(err.Error(), "parsing uri") {
		return resource.Classified(resource.KindInvalidURI, err)
	}
	return resource.Classified(resource.KindConfiguration, err)
}

// classifyConnect maps a connect or ping failure. Server selection running
// out of time is a timeout; other network-level failures are connection
// failures.
func classifyConnect(err error) error {
	if mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return resource.Classified(resource.KindTimeout, err)
	}
	return resource.Classified(resource.KindConnectionFailure, err)
}
