package wire

// Version is the protocol version carried by every envelope and ticket.
const Version byte = 24

// Request codes, sent by clients & message servers to the auth server, and by
// clients to message servers. The request & response code spaces are distinct
// and each has its own dispatch table, see payloads.go.
const (
	CodeRegisterClient int16 = 1024 // client registration
	CodeRegisterServer int16 = 1025 // message server registration
	CodeListServers    int16 = 1026 // message server listing
	CodeGetSessionKey  int16 = 1027 // session key & ticket request
	CodePresentTicket  int16 = 1028 // ticket + authenticator presentation
	CodeSendMessage    int16 = 1029 // encrypted application message
)

// Response codes.
const (
	CodeRegisterClientOK   int16 = 1600 // registration success, payload = client id
	CodeRegisterClientFail int16 = 1601 // registration failure (duplicate name), no payload
	CodeServerList         int16 = 1602 // message server listing, payload = text lines
	CodeSessionKey         int16 = 1603 // session key & ticket, payload = SessionKeyResp
	CodeTicketAccepted     int16 = 1604 // ticket + authenticator accepted, no payload
	CodeMessageAccepted    int16 = 1605 // message decrypted & accepted, no payload
	CodeRegisterServerOK   int16 = 1608 // server registration success, payload = server id
	CodeGeneralError       int16 = 1609 // catch-all failure, no payload
)
