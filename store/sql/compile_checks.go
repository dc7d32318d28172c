package sqlstore

import "github.com/goliatone/go-banklink/core"

var (
	_ core.BankRecordStore  = (*BankAccountStore)(nil)
	_ core.BankRecordStore  = (*CachedBankAccountStore)(nil)
	_ core.ViewInvalidator  = (*CachedBankAccountStore)(nil)
	_ core.UserProfileStore = (*UserProfileStore)(nil)
)
