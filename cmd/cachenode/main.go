// Command cachenode is an example process wiring the cache store's
// pieces together the way pfsagentd/main.go wires a FUSE mount together:
// parse a .conf file, bring up the cache, serve the server's evict/
// downgrade callback RPCs, and run until a signal arrives.
package main

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/objectgraph/cachestore/cacheconf"
	"github.com/objectgraph/cachestore/cachetable"
	"github.com/objectgraph/cachestore/conf"
	"github.com/objectgraph/cachestore/dlm"
	"github.com/objectgraph/cachestore/evictor"
	"github.com/objectgraph/cachestore/logger"
	"github.com/objectgraph/cachestore/serverproto"
	"github.com/objectgraph/cachestore/store"
	"github.com/objectgraph/cachestore/txncontext"
	"github.com/objectgraph/cachestore/updatequeue"
	"github.com/objectgraph/cachestore/wire"
)

// registrationLock serializes this node's registerNode calls across a
// SIGHUP reload, the one place in the node's lifecycle where a second
// caller racing the first against the server's registration table would
// actually matter.
var registrationLock = &dlm.RWLockStruct{
	LockID:       "cachenode.registration",
	LockCallerID: dlm.GenerateCallerID(),
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		logger.Fatalf("cachenode: no .conf file specified")
	}

	confMap, err := conf.MakeConfMapFromFile(args[0])
	if err != nil {
		logger.Fatalf("cachenode: failed to load config: %v", err)
	}
	if err := confMap.UpdateFromStrings(args[1:]); err != nil {
		logger.Fatalf("cachenode: failed to apply config overrides: %v", err)
	}

	cfg, err := cacheconf.Load(confMap)
	if err != nil {
		logger.Fatalf("cachenode: %v", err)
	}

	table := cachetable.New(cfg.CacheSize, cfg.NumLocks)
	queue := updatequeue.New(cfg.UpdateQueueSize)

	transport, err := serverproto.NewRPCTransport(func() (*rpc.Client, error) {
		return rpc.Dial("tcp", fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort))
	})
	if err != nil {
		logger.Fatalf("cachenode: dialing server %s:%d: %v", cfg.ServerHost, cfg.ServerPort, err)
	}
	client := serverproto.NewClient(transport, cfg.RetryWait, cfg.MaxRetry)

	cacheStore := store.New(table, client, queue)

	evict := evictor.New(table, queue, client, cfg)
	evict.Start()
	defer evict.Stop()

	callbackListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.CallbackPort))
	if err != nil {
		logger.Fatalf("cachenode: listening on callback port %d: %v", cfg.CallbackPort, err)
	}
	defer callbackListener.Close()

	callbackServer := rpc.NewServer()
	if err := callbackServer.RegisterName("Callback", &callbackHandler{store: cacheStore}); err != nil {
		logger.Fatalf("cachenode: registering callback handler: %v", err)
	}
	go callbackServer.Accept(callbackListener)

	txnManager := txncontext.NewManager()

	facadeListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.FacadePort))
	if err != nil {
		logger.Fatalf("cachenode: listening on facade port %d: %v", cfg.FacadePort, err)
	}
	defer facadeListener.Close()

	facadeServer := rpc.NewServer()
	if err := facadeServer.RegisterName("Facade", &facadeHandler{
		store:      cacheStore,
		manager:    txnManager,
		queue:      queue,
		txnTimeout: cfg.TxnTimeout,
	}); err != nil {
		logger.Fatalf("cachenode: registering facade handler: %v", err)
	}
	go acceptJSONRPC(facadeServer, facadeListener)

	registrationLock.WriteLock()
	err = client.RegisterNode(cfg.ServerHost, cfg.CallbackPort)
	registrationLock.Unlock()
	if err != nil {
		logger.Fatalf("cachenode: registering with server: %v", err)
	}
	logger.Infof("cachenode registered with server %s:%d, serving callbacks on :%d, facade on :%d", cfg.ServerHost, cfg.ServerPort, cfg.CallbackPort, cfg.FacadePort)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, unix.SIGHUP, unix.SIGINT, unix.SIGTERM)
	<-signalChan

	logger.Infof("cachenode shutting down")
}

// acceptJSONRPC serves conn as JSON-RPC, one decoded-and-served codec per
// accepted connection, the way facadeHandler's clients speak JSON-RPC
// rather than net/rpc's default gob encoding.
func acceptJSONRPC(server *rpc.Server, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		go server.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// callbackHandler exposes the store's server-initiated requestEvict/
// requestDowngrade operations as net/rpc methods, the target of the
// callback host:port this node hands the server in RegisterNode.
type callbackHandler struct {
	store *store.Store
}

type EvictObjectArgs struct {
	OID uint64
}

type EvictReply struct {
	Settled bool
}

func (h *callbackHandler) EvictObject(args *EvictObjectArgs, reply *EvictReply) error {
	reply.Settled = h.store.RequestEvictObject(wire.OID(args.OID))
	return nil
}

type EvictBindingArgs struct {
	Name string
}

func (h *callbackHandler) EvictBinding(args *EvictBindingArgs, reply *EvictReply) error {
	reply.Settled = h.store.RequestEvictBinding(wire.Name(args.Name))
	return nil
}

type DowngradeObjectArgs struct {
	OID uint64
}

func (h *callbackHandler) DowngradeObject(args *DowngradeObjectArgs, reply *EvictReply) error {
	reply.Settled = h.store.RequestDowngradeObject(wire.OID(args.OID))
	return nil
}

type DowngradeBindingArgs struct {
	Name string
}

func (h *callbackHandler) DowngradeBinding(args *DowngradeBindingArgs, reply *EvictReply) error {
	reply.Settled = h.store.RequestDowngradeBinding(wire.Name(args.Name))
	return nil
}
