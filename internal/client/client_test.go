package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"testing"

	"code.kerpass.org/ticketauth/internal/algos"
	"code.kerpass.org/ticketauth/internal/authserver"
	"code.kerpass.org/ticketauth/internal/credentials/filedb"
	"code.kerpass.org/ticketauth/internal/msgserver"
	"code.kerpass.org/ticketauth/internal/observability"
	"code.kerpass.org/ticketauth/internal/wire"
)

// testStack runs an auth server and one registered message server.
type testStack struct {
	authAddr string
	tmpdir   string
}

func startStack(t *testing.T) *testStack {
	observability.SetTestDebugLogging(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tmpdir := t.TempDir()

	// auth server
	store := filedb.New(path.Join(tmpdir, "clients.db"), path.Join(tmpdir, "servers.db"))
	svc, err := authserver.NewService(ctx, store)
	if nil != err {
		t.Fatalf("failed NewService, got error %v", err)
	}
	asrv := authserver.NewServer(authserver.Config{Listen: "127.0.0.1:0"}, svc)
	err = asrv.Listen()
	if nil != err {
		t.Fatalf("failed auth server Listen, got error %v", err)
	}
	go asrv.Serve(ctx)

	// message server, self-registering at startup
	cfg := msgserver.Config{
		Path:     path.Join(tmpdir, "identity"),
		Listen:   fmt.Sprintf("127.0.0.1:%d", freePort(t)),
		Name:     "mailbox",
		AuthAddr: asrv.Addr(),
	}
	err = msgserver.Bootstrap(ctx, &cfg)
	if nil != err {
		t.Fatalf("failed Bootstrap, got error %v", err)
	}
	msrv, err := msgserver.NewServer(cfg)
	if nil != err {
		t.Fatalf("failed msgserver.NewServer, got error %v", err)
	}
	err = msrv.Listen()
	if nil != err {
		t.Fatalf("failed message server Listen, got error %v", err)
	}
	go msrv.Serve(ctx)

	return &testStack{authAddr: asrv.Addr(), tmpdir: tmpdir}
}

// freePort reserves an ephemeral port and releases it for the message server,
// whose claimed port has to match its listen address.
func freePort(t *testing.T) int {
	lsn, err := net.Listen("tcp", "127.0.0.1:0")
	if nil != err {
		t.Fatalf("failed reserving port, got error %v", err)
	}
	defer lsn.Close()
	return lsn.Addr().(*net.TCPAddr).Port
}

func newTestClient(t *testing.T, stack *testStack, identity string) *Client {
	cli, err := New(Config{
		AuthAddr:     stack.authAddr,
		IdentityPath: path.Join(stack.tmpdir, identity),
	})
	if nil != err {
		t.Fatalf("failed New, got error %v", err)
	}
	t.Cleanup(cli.Close)
	return cli
}

func TestHandshakeAndMessaging(t *testing.T) {
	ctx := context.Background()
	stack := startStack(t)
	cli := newTestClient(t, stack, "alice.identity")

	if cli.Registered() {
		t.Fatal("fresh client claims an identity")
	}
	err := cli.Register(ctx, "alice", "s3cret")
	if nil != err {
		t.Fatalf("failed Register, got error %v", err)
	}
	if "alice" != cli.Name() {
		t.Errorf("failed name control, %q != alice", cli.Name())
	}

	servers, err := cli.ListServers(ctx)
	if nil != err {
		t.Fatalf("failed ListServers, got error %v", err)
	}
	if 1 != len(servers) || "mailbox" != servers[0].Name {
		t.Fatalf("failed listing control, got %+v", servers)
	}

	err = cli.Connect(ctx, servers[0])
	if nil != err {
		t.Fatalf("failed Connect, got error %v", err)
	}
	if "mailbox" != cli.Session() {
		t.Errorf("failed session control, %q != mailbox", cli.Session())
	}

	// the session key & ticket pair is reused across messages
	for pos, msg := range []string{"hello", "second message"} {
		err = cli.Send(ctx, msg)
		if nil != err {
			t.Fatalf("[%d]: failed Send, got error %v", pos, err)
		}
	}

	// re-selection restarts the handshake on a fresh session
	err = cli.Connect(ctx, servers[0])
	if nil != err {
		t.Fatalf("failed reconnect, got error %v", err)
	}
	err = cli.Send(ctx, "after reconnect")
	if nil != err {
		t.Fatalf("failed Send after reconnect, got error %v", err)
	}
}

func TestRegisterNameTaken(t *testing.T) {
	ctx := context.Background()
	stack := startStack(t)

	cli := newTestClient(t, stack, "alice.identity")
	err := cli.Register(ctx, "alice", "s3cret")
	if nil != err {
		t.Fatalf("failed Register, got error %v", err)
	}

	other := newTestClient(t, stack, "other.identity")
	err = other.Register(ctx, "alice", "different")
	if !errors.Is(err, ErrNameTaken) {
		t.Errorf("error is not ErrNameTaken, got %v", err)
	}
	if other.Registered() {
		t.Error("failed registration left an identity behind")
	}
}

func TestIdentityPersistence(t *testing.T) {
	ctx := context.Background()
	stack := startStack(t)

	cli := newTestClient(t, stack, "alice.identity")
	err := cli.Register(ctx, "alice", "s3cret")
	if nil != err {
		t.Fatalf("failed Register, got error %v", err)
	}

	// a new process run reloads the identity and only needs the password
	reloaded := newTestClient(t, stack, "alice.identity")
	if !reloaded.Registered() || "alice" != reloaded.Name() {
		t.Fatal("identity not reloaded")
	}
	reloaded.SetPassword("s3cret")

	servers, err := reloaded.ListServers(ctx)
	if nil != err {
		t.Fatalf("failed ListServers, got error %v", err)
	}
	err = reloaded.Connect(ctx, servers[0])
	if nil != err {
		t.Fatalf("failed Connect, got error %v", err)
	}
	err = reloaded.Send(ctx, "hello again")
	if nil != err {
		t.Fatalf("failed Send, got error %v", err)
	}
}

func TestConnectWrongPassword(t *testing.T) {
	ctx := context.Background()
	stack := startStack(t)

	cli := newTestClient(t, stack, "alice.identity")
	err := cli.Register(ctx, "alice", "s3cret")
	if nil != err {
		t.Fatalf("failed Register, got error %v", err)
	}

	impostor := newTestClient(t, stack, "alice.identity")
	impostor.SetPassword("wrong")
	servers, err := impostor.ListServers(ctx)
	if nil != err {
		t.Fatalf("failed ListServers, got error %v", err)
	}
	err = impostor.Connect(ctx, servers[0])
	if nil == err {
		t.Fatal("handshake succeeded with a wrong password")
	}
	if "" != impostor.Session() {
		t.Error("failed handshake left a session behind")
	}
}

func TestListServersEmpty(t *testing.T) {
	observability.SetTestDebugLogging(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tmpdir := t.TempDir()
	store := filedb.New(path.Join(tmpdir, "clients.db"), path.Join(tmpdir, "servers.db"))
	svc, err := authserver.NewService(ctx, store)
	if nil != err {
		t.Fatalf("failed NewService, got error %v", err)
	}
	asrv := authserver.NewServer(authserver.Config{Listen: "127.0.0.1:0"}, svc)
	err = asrv.Listen()
	if nil != err {
		t.Fatalf("failed Listen, got error %v", err)
	}
	go asrv.Serve(ctx)

	cli, err := New(Config{AuthAddr: asrv.Addr(), IdentityPath: path.Join(tmpdir, "alice.identity")})
	if nil != err {
		t.Fatalf("failed New, got error %v", err)
	}
	err = cli.Register(ctx, "alice", "s3cret")
	if nil != err {
		t.Fatalf("failed Register, got error %v", err)
	}

	_, err = cli.ListServers(ctx)
	if !errors.Is(err, ErrNoServers) {
		t.Errorf("error is not ErrNoServers, got %v", err)
	}
}

func TestOpenKeyBlockNonceMismatch(t *testing.T) {
	cli := &Client{}
	cli.SetPassword("s3cret")

	// forge a key block that opens fine but echoes another nonce
	sessionKey := algos.NewSymmetricKey()
	sent := algos.NewNonce()
	echoed := sent
	echoed[0] ^= 0xFF

	block := wire.EncryptedSessionKey{IV: algos.NewIV()}
	ciphertext, _, err := algos.EncryptAESCBC(cli.passwordHash[:], echoed[:], block.IV[:])
	if nil != err {
		t.Fatalf("failed sealing nonce, got error %v", err)
	}
	copy(block.EncNonce[:], ciphertext)
	ciphertext, _, err = algos.EncryptAESCBC(cli.passwordHash[:], sessionKey[:], block.IV[:])
	if nil != err {
		t.Fatalf("failed sealing session key, got error %v", err)
	}
	copy(block.EncSessionKey[:], ciphertext)

	_, err = cli.openKeyBlock(block, sent)
	if !errors.Is(err, ErrNonceMismatch) {
		t.Errorf("error is not ErrNonceMismatch, got %v", err)
	}

	// the genuine echo opens
	ciphertext, _, err = algos.EncryptAESCBC(cli.passwordHash[:], sent[:], block.IV[:])
	if nil != err {
		t.Fatalf("failed sealing nonce, got error %v", err)
	}
	copy(block.EncNonce[:], ciphertext)
	key, err := cli.openKeyBlock(block, sent)
	if nil != err {
		t.Fatalf("failed openKeyBlock, got error %v", err)
	}
	if sessionKey != key {
		t.Error("failed session key control")
	}
}

func TestLoadIdentityMissingFile(t *testing.T) {
	ident, err := LoadIdentity(path.Join(t.TempDir(), "absent"))
	if nil != err {
		t.Fatalf("failed LoadIdentity, got error %v", err)
	}
	if nil != ident {
		t.Error("missing identity file did not decode to nil")
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	identpath := path.Join(t.TempDir(), "identity")
	ident := Identity{Name: "alice"}
	for i := range ident.Id {
		ident.Id[i] = byte(i + 1)
	}

	err := ident.Save(identpath)
	if nil != err {
		t.Fatalf("failed Save, got error %v", err)
	}
	loaded, err := LoadIdentity(identpath)
	if nil != err {
		t.Fatalf("failed LoadIdentity, got error %v", err)
	}
	if nil == loaded || *loaded != ident {
		t.Errorf("round trip mismatch, got %+v", loaded)
	}
}

func TestLoadIdentityInvalid(t *testing.T) {
	identpath := path.Join(t.TempDir(), "identity")
	err := os.WriteFile(identpath, []byte("alice\nnot-hex\n"), 0600)
	if nil != err {
		t.Fatalf("failed writing identity file, got error %v", err)
	}
	_, err = LoadIdentity(identpath)
	if nil == err {
		t.Error("invalid identity file was accepted")
	}
}
