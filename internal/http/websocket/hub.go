package websocket

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mickaelmarchal/exifstream/pkg/logger"
)

var socketLogger = logger.Get("WebSocket")

type SocketHandler func(*SocketHub, *SocketMessage) error

// SocketHub manages websocket upgrading, client registration, and the
// pushing and receiving of messages. Clients subscribe to the activity
// feed simply by connecting; commands they send are dispatched to the
// handlers bound via BindCommand.
type SocketHub struct {
	handlers           map[string]SocketHandler
	upgrader           *websocket.Upgrader
	clients            []*socketClient
	registerCh         chan *socketClient
	deregisterCh       chan *socketClient
	sendCh             chan *SocketMessage
	receiveCh          chan *SocketMessage
	connectionCallback func() map[string]interface{}
	running            bool
}

func NewSocketHub() *SocketHub {
	return &SocketHub{
		handlers: make(map[string]SocketHandler),
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		running: false,
	}
}

// WithConnectionCallback sets a callback executed each time a new
// client connects to this hub. The map it returns is merged in to the
// welcome message, furnishing the client with the servers current
// state without waiting for an UPDATE packet (which may never come if
// the content does not change).
func (hub *SocketHub) WithConnectionCallback(callback func() map[string]interface{}) {
	hub.connectionCallback = callback
}

// BindCommand binds a command title to a handler.
func (hub *SocketHub) BindCommand(command string, handler SocketHandler) *SocketHub {
	hub.handlers[command] = handler
	return hub
}

// Start runs the hub event loop, listening on all related channels for
// incoming clients and messages. Blocks until the context is cancelled.
func (hub *SocketHub) Start(ctx context.Context) {
	if hub.running {
		socketLogger.Emit(logger.WARNING, "Attempting to start socket hub when already running! Ignoring request.\n")
		return
	} else if ctx.Err() != nil {
		socketLogger.Emit(logger.STOP, "Refusing to start socket hub as provided context is already cancelled\n")
		return
	}
	socketLogger.Emit(logger.INFO, "Opening socket hub\n")

	hub.sendCh = make(chan *SocketMessage)
	hub.receiveCh = make(chan *SocketMessage)
	hub.registerCh = make(chan *socketClient)
	hub.deregisterCh = make(chan *socketClient)
	hub.clients = make([]*socketClient, 0)
	hub.running = true

	defer hub.close()
loop:
	for {
		select {
		case message := <-hub.sendCh:
			if message.Target != nil {
				if _, client := hub.findClient(message.Target); client != nil {
					if err := client.SendMessage(message); err != nil {
						socketLogger.Emit(logger.ERROR, "Failed to send message to target {%v}: %v\n", message.Target, err.Error())
					}
				} else {
					socketLogger.Emit(logger.WARNING, "Attempted to send message to target {%v}, but no matching client was found.\n", message.Target)
				}

				break
			}

			hub.broadcastMessage(message)
		case message := <-hub.receiveCh:
			go hub.handleMessage(message)
		case client := <-hub.registerCh:
			if idx, _ := hub.findClient(client.id); idx > -1 {
				socketLogger.Emit(logger.ERROR, "Attempted to register client that is already registered (duplicate uuid)! Illegal!\n")
				client.Close()

				break
			}

			hub.clients = append(hub.clients, client)
			socketLogger.Emit(logger.NEW, "Registered new client {%v}\n", client.id)
		case client := <-hub.deregisterCh:
			if idx, _ := hub.findClient(client.id); idx != -1 {
				hub.clients = append(hub.clients[:idx], hub.clients[idx+1:]...)
				socketLogger.Emit(logger.REMOVE, "Deregistered client {%v}\n", client.id)

				break
			}

			socketLogger.Emit(logger.WARNING, "Attempted to deregister unknown client {%v}\n", client.id)
		case <-ctx.Done():
			socketLogger.Emit(logger.REMOVE, "Shutting down socket hub! Closing all clients.\n")
			break loop
		}
	}
}

// Send emits the message provided on the send channel. A message with a
// Target is only delivered to the client with a matching ID; otherwise
// it is broadcast to all connected clients.
// The message is ignored if the hub is not running (see Start()).
func (hub *SocketHub) Send(message *SocketMessage) {
	if !hub.running {
		socketLogger.Emit(logger.WARNING, "Attempted to send message via socket hub, however the hub is offline. Ignoring message.\n")
		return
	}

	hub.sendCh <- message
}

// UpgradeToSocket upgrades a given HTTP request to a websocket and adds
// the new client to the hub. Blocks for the lifetime of the clients
// read loop.
func (hub *SocketHub) UpgradeToSocket(w http.ResponseWriter, r *http.Request) {
	if !hub.running {
		socketLogger.Emit(logger.ERROR, "Failed to upgrade incoming HTTP request to a websocket: socket hub has not been started!\n")
		return
	}

	// Generate the UUID first - if this fails after upgrading, the
	// connection is already a websocket and cannot be cleanly refused.
	id, err := uuid.NewRandom()
	if err != nil {
		socketLogger.Emit(logger.ERROR, "Failed to generate UUID for new connection - aborting!\n")
		return
	}

	sock, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		socketLogger.Emit(logger.ERROR, "Failed to upgrade incoming HTTP request to a websocket: %v\n", err.Error())
		return
	}

	client := &socketClient{
		id:     &id,
		socket: sock,
	}

	hub.registerCh <- client

	body := map[string]interface{}{}
	if hub.connectionCallback != nil {
		body = hub.connectionCallback()
	}
	body["client"] = id

	hub.Send(&SocketMessage{
		Title:  "CONNECTION_ESTABLISHED",
		Body:   body,
		Target: &id,
		Type:   Welcome,
	})

	// Once the read loop finishes - disconnect or error - the client
	// must be deregistered.
	defer func() {
		hub.deregisterCh <- client
		client.Close()
	}()

	if err := client.Read(hub.receiveCh); err != nil {
		socketLogger.Emit(logger.WARNING, "Client {%v} closed, error: %v\n", client.id, err.Error())
	}
}

func (hub *SocketHub) close() {
	if !hub.running {
		socketLogger.Emit(logger.WARNING, "Attempted to close a socket hub that is not running!\n")
		return
	}

	for _, client := range hub.clients {
		client.Close()
	}

	hub.clients = nil
	hub.running = false
	socketLogger.Emit(logger.STOP, "Socket hub is now closed!\n")
}

// handleMessage forwards a received command to the bound handler if one
// exists. Non-command messages and unknown commands are answered with
// an error reply.
func (hub *SocketHub) handleMessage(command *SocketMessage) {
	if command.Type != Command {
		socketLogger.Emit(logger.WARNING, "Received a message from client {%v} of type {%v} - this type is not allowed, only commands can be sent to the server!\n", command.Origin, command.Type)
		return
	}

	replyWithError := func(err string) {
		hub.Send(&SocketMessage{
			Title:  "COMMAND_FAILURE",
			Id:     command.Id,
			Target: command.Origin,
			Body:   map[string]interface{}{"command": command, "error": err},
			Type:   ErrorResponse,
		})
	}

	if handler, ok := hub.handlers[command.Title]; ok {
		if err := handler(hub, command); err != nil {
			socketLogger.Emit(logger.ERROR, "Handler for command '%v' returned error - %v\n", command.Title, err.Error())
			replyWithError(err.Error())
		}

		return
	}

	replyWithError("Unknown command")
	socketLogger.Emit(logger.WARNING, "No handler found for command '%v'\n", command.Title)
}

// findClient returns the client with the matching uuid along with its
// index in the client list, or (-1, nil).
func (hub *SocketHub) findClient(id *uuid.UUID) (int, *socketClient) {
	for idx, client := range hub.clients {
		if *client.id == *id {
			return idx, client
		}
	}

	return -1, nil
}

func (hub *SocketHub) broadcastMessage(message *SocketMessage) {
	for _, client := range hub.clients {
		if err := client.SendMessage(message); err != nil {
			socketLogger.Emit(logger.ERROR, "Failed to broadcast message to client {%v}: %v\n", client.id, err.Error())
		}
	}
}
