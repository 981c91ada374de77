package transport

import "github.com/google/uuid"

// Connect joins client to server in memory under a fresh id.
func Connect(server *Server, client *Client) ClientID {
	id := uuid.New()
	server.Connect(id)
	client.SetConnected(id)
	return id
}

// Disconnect tears down an in-memory connection from both ends.
func Disconnect(server *Server, client *Client) {
	server.Disconnect(client.ID())
	client.SetDisconnected()
}

type exchangeOptions struct {
	dropServer map[ChannelID]bool
	dropClient map[ChannelID]bool
}

type ExchangeOption func(*exchangeOptions)

// DropServerChannel loses every server to client message on channel, as an
// unreliable transport might.
func DropServerChannel(channel ChannelID) ExchangeOption {
	return func(o *exchangeOptions) {
		o.dropServer[channel] = true
	}
}

// DropClientChannel loses every client to server message on channel.
func DropClientChannel(channel ChannelID) ExchangeOption {
	return func(o *exchangeOptions) {
		o.dropClient[channel] = true
	}
}

// Exchange moves buffered messages between an in-memory server and its
// clients in both directions. Server messages addressed to clients not in
// the list are put back.
func Exchange(server *Server, clients []*Client, opts ...ExchangeOption) {
	o := exchangeOptions{
		dropServer: make(map[ChannelID]bool),
		dropClient: make(map[ChannelID]bool),
	}
	for _, opt := range opts {
		opt(&o)
	}

	byID := make(map[ClientID]*Client, len(clients))
	for _, c := range clients {
		if !c.IsConnected() {
			continue
		}
		byID[c.ID()] = c
		for _, m := range c.DrainSent() {
			if o.dropClient[m.Channel] {
				continue
			}
			server.Inject(c.ID(), m.Channel, m.Payload)
		}
	}

	var kept []Outbound
	for _, m := range server.DrainSent() {
		c, ok := byID[m.Client]
		if !ok {
			kept = append(kept, m)
			continue
		}
		if o.dropServer[m.Channel] {
			continue
		}
		c.Inject(m.Channel, m.Payload)
	}
	server.sent = append(kept, server.sent...)
}
