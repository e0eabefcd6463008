package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"wordcount/message"
	"wordcount/rpc/helper"
)

// Context contains the context information for a RPC request.
type Context struct {
	Address string
}

// HandlerFunc is the handler function for a RPC request.
type HandlerFunc func(ctx Context, req message.Message) (resp message.Message, err error)

// Server is a RPC server.
type Server struct {
	handlerMap       map[string]HandlerFunc
	logger           *log.Logger
	recoverFromPanic bool

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer creates a new Server instance.
func NewServer() *Server {
	return &Server{
		handlerMap: make(map[string]HandlerFunc),
		logger:     log.New(os.Stdout, "[rpc server] ", log.LstdFlags|log.Lmsgprefix),
		conns:      make(map[net.Conn]struct{}),
	}
}

// SetLogPrefix sets the prefix of the log messages.
func (s *Server) SetLogPrefix(prefix string) {
	s.logger.SetPrefix(prefix + " ")
}

// SetLogger replaces the logger of the server.
func (s *Server) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// SetRecoverFromPanic sets whether the server should recover from panic caused
// by the registered handlers
func (s *Server) SetRecoverFromPanic(recover bool) {
	s.recoverFromPanic = recover
}

func (s *Server) printLog(format string, a ...any) {
	s.logger.Printf(format, a...)
}

// RegisterByTypeUrl registers the handler for the specified request message type.
func (s *Server) RegisterByTypeUrl(typeUrl string, handler HandlerFunc) error {
	if _, err := message.FindByURL(typeUrl); err != nil {
		return err
	}
	s.handlerMap[typeUrl] = handler
	return nil
}

// RegisterByMessage registers the handler for the specified request message.
func (s *Server) RegisterByMessage(msg message.Message, handler HandlerFunc) {
	s.handlerMap[message.TypeURL(msg)] = handler
}

// handle handles the request and returns the response.
func (s *Server) handle(ctx Context, req message.Message) (resp message.Message, err error) {
	typeUrl := message.TypeURL(req)
	handler, ok := s.handlerMap[typeUrl]
	if !ok {
		err = fmt.Errorf("no handler for type %s", req.Name())
		return
	}
	if s.recoverFromPanic {
		defer func() {
			// recover from panic
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
	}
	return handler(ctx, req)
}

// toErrorMessage converts err to the wire error. Errors exposing a
// Code() string method keep their classification.
func toErrorMessage(err error) *message.Error {
	var wireErr *message.Error
	if errors.As(err, &wireErr) {
		return wireErr
	}
	resp := &message.Error{Message: err.Error()}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		resp.Code = coded.Code()
	}
	return resp
}

// handleConn handles the connection.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	remoteAddr := conn.RemoteAddr().String()
	for {
		req, err := helper.Receive(conn)
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				return
			}
			s.printLog("receive error for conn %s: %v, closing conn", remoteAddr, err)
			return
		}
		// unmarshal the request
		reqMsg, err := message.Unwrap(req)
		if err != nil {
			s.printLog("bad request (%s) from %s: %v, send back error", req.TypeUrl, remoteAddr, err)
			if err := helper.SendMessage(conn, toErrorMessage(err)); err != nil {
				s.printLog("send message failed for conn %s: %v", remoteAddr, err)
				return
			}
			continue
		}

		// handle the request
		ctx := Context{
			Address: remoteAddr,
		}
		respMsg, err := s.handle(ctx, reqMsg)
		if err != nil {
			respMsg = toErrorMessage(err)
			s.printLog("request (%s) from %s handled with error: %s", reqMsg.Name(), remoteAddr, err)
		} else if respMsg == nil {
			respMsg = &message.Empty{}
		}
		// send back the response
		if err := helper.SendMessage(conn, respMsg); err != nil {
			s.printLog("send message failed for conn %s: %v", remoteAddr, err)
			return
		}
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// Serve accepts connections on listener until it is closed.
func (s *Server) Serve(listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.printLog("accept error: %v", err)
			continue
		}
		s.track(conn)
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// CloseConns closes every open connection and waits for their handlers to
// return. The listener passed to Serve must be closed by the caller.
func (s *Server) CloseConns() {
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
