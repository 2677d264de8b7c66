package context

import stdcontext "context"

type Key string

const (
	Caller Key = "caller"
	Params Key = "params"
)

// Method records which credential authenticated the request.
type Method string

const (
	MethodJWT    Method = "jwt"
	MethodAPIKey Method = "api_key"
)

type Identity struct {
	UserID string
	Method Method
}

func WithIdentity(ctx stdcontext.Context, id *Identity) stdcontext.Context {
	return stdcontext.WithValue(ctx, Caller, id)
}

func IdentityFrom(ctx stdcontext.Context) (*Identity, bool) {
	id, ok := ctx.Value(Caller).(*Identity)
	return id, ok && id != nil
}
