// Package remote implements driven.RemoteRecommenderClient over the JSON
// HTTP API of an external recommender service.
//
// Endpoints:
//
//	POST   /datasets/{name}
//	GET    /datasets/{name}/documents
//	PUT    /datasets/{name}/documents/{doc}
//	DELETE /datasets/{name}/documents/{doc}
//	POST   /classifiers/{name}/train
//	POST   /classifiers/{name}/predict
//	GET    /classifiers
//	GET    /classifiers/{name}
//
// Requests are throttled with a token bucket (golang.org/x/time/rate) and
// bounded by connect and read timeouts. Transport and HTTP failures are
// returned as *domain.ExternalRecommenderAPIError.
package remote
