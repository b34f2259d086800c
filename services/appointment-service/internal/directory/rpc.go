package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/gobarber/appointments/services/appointment-service/internal/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// The directory RPC uses protobuf well-known Struct messages so no generated code is needed:
// request {"id": <number>}, response {"id", "name", "email", "provider", "avatar_path"}.
const (
	serviceName  = "gobarber.directory.v1.DirectoryService"
	lookupMethod = "/" + serviceName + "/Lookup"
)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Directory)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Lookup", Handler: lookupHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gobarber/directory/v1/directory.proto",
}

// Register exposes d on srv.
func Register(srv *grpc.Server, d Directory) {
	srv.RegisterService(&serviceDesc, d)
}

func lookupHandler(impl any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		return serveLookup(ctx, impl.(Directory), req.(*structpb.Struct))
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: impl, FullMethod: lookupMethod}
	return interceptor(ctx, in, info, call)
}

func serveLookup(ctx context.Context, d Directory, req *structpb.Struct) (*structpb.Struct, error) {
	id := int64(req.GetFields()["id"].GetNumberValue())
	if id <= 0 {
		return nil, status.Error(codes.InvalidArgument, "id must be positive")
	}
	u, err := d.Lookup(ctx, id)
	if errors.Is(err, ErrUnknownUser) {
		return nil, status.Error(codes.NotFound, "unknown user")
	}
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return structpb.NewStruct(map[string]any{
		"id":          float64(u.ID),
		"name":        u.Name,
		"email":       u.Email,
		"provider":    u.Provider,
		"avatar_path": u.AvatarPath,
	})
}

// GRPC is a Directory backed by a remote DirectoryService.
type GRPC struct {
	conn grpc.ClientConnInterface
}

func NewGRPC(conn grpc.ClientConnInterface) *GRPC {
	return &GRPC{conn: conn}
}

func (g *GRPC) Lookup(ctx context.Context, id int64) (model.User, error) {
	req, err := structpb.NewStruct(map[string]any{"id": float64(id)})
	if err != nil {
		return model.User{}, err
	}
	out := new(structpb.Struct)
	if err := g.conn.Invoke(ctx, lookupMethod, req, out); err != nil {
		if status.Code(err) == codes.NotFound {
			return model.User{}, ErrUnknownUser
		}
		return model.User{}, fmt.Errorf("directory rpc: %w", err)
	}
	f := out.GetFields()
	return model.User{
		ID:         int64(f["id"].GetNumberValue()),
		Name:       f["name"].GetStringValue(),
		Email:      f["email"].GetStringValue(),
		Provider:   f["provider"].GetBoolValue(),
		AvatarPath: f["avatar_path"].GetStringValue(),
	}, nil
}
