// Package contract persists client-side contract records and builds signed
// update requests against them.
package contract
