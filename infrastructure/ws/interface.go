package ws

type IHub interface {
	Run()
	RegisterClient(client *UserClient)
	UnregisterClient(client *UserClient)
	SendToClient(userId string, message []byte)
	Broadcast(message []byte)
	GetClientCount() int
	SetOnClientUnregister(callback func(client *UserClient) error)
}
