package main

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lucas/overmesh/internal/peertransport/rpc"
)

// dialAdmin connects to a running meshd's admin RPC surface. TLS is not
// wired in here: meshctl is expected to talk to the admin surface over
// loopback or an operator-trusted network rather than present a client
// certificate.
func dialAdmin(addr string) (*rpc.AdminClient, func(), error) {
	rpc.RegisterCodec()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return rpc.NewAdminClient(conn), func() { conn.Close() }, nil
}
