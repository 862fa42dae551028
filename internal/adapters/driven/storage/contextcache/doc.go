// Package contextcache keeps recommender contexts between training and
// prediction in a github.com/patrickmn/go-cache cache. Entries expire after
// an idle period; every successful Get renews the expiry.
package contextcache
