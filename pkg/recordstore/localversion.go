package recordstore

import (
	"github.com/recordsplit/recordsplit/pkg/kvs"
	"github.com/recordsplit/recordsplit/pkg/splitkey"
	"github.com/recordsplit/recordsplit/pkg/version"
)

// injectLocalVersion implements the transaction-local incomplete-version
// injection step: if no durable version entry was read and the reader is
// not in legacy mode, a version staged earlier in the same transaction
// (and not yet committed) must still be surfaced to the caller.
func injectLocalVersion(tx kvs.Transaction, prefix []byte, acc *accumulator) {
	if acc.oldVersionFormat || acc.hasVersion {
		return
	}
	local, ok := tx.GetLocalVersion(prefix)
	if !ok {
		return
	}
	versionKey := splitkey.PackKey(prefix, splitkey.VersionIndex)
	acc.MarkLocalVersion(version.Incomplete(local), versionKey)
}
