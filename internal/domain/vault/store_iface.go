package vault

import "context"

type StoreAPI interface {
	Upsert(ctx context.Context, rec record) error
	Get(ctx context.Context, platform string) (record, error)
	List(ctx context.Context) ([]record, error)
	Delete(ctx context.Context, platform string) (bool, error)
	UpdateCiphertexts(ctx context.Context, platform string, usernameCT, passwordCT []byte, keyVersion int) error
}
