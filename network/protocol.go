package network

// Inbound message ids (client -> server).
const (
	MsgTypeHeartbeat        = 1
	MsgTypeJoinSpectator    = 101
	MsgTypeSendChallenge    = 111
	MsgTypeDeclineChallenge = 112
	MsgTypeAcceptChallenge  = 113
	MsgTypeSubmitAnswer     = 121
	MsgTypeLeaveMatch       = 122
	MsgTypeRoomMessage      = 123
	MsgTypeGetOnlineUsers   = 131
	MsgTypeGetLiveMatches   = 132
)

// Outbound message ids (server -> client).
const (
	MsgTypeChallengeReceived      = 201
	MsgTypeChallengeDeclined      = 202
	MsgTypeChallengeError         = 203
	MsgTypeMatchStarted           = 211
	MsgTypeMatchError             = 212
	MsgTypeMatchAlreadyInProgress = 213
	MsgTypePlayerAnswered         = 221
	MsgTypeForceNextQuestion      = 222
	MsgTypePlayerLeft             = 223
	MsgTypeMatchTimeout           = 224
	MsgTypeChallengeFinished      = 225
	MsgTypeSpectatorCount         = 231
	MsgTypeMatchSnapshot          = 232
	MsgTypeSpectatorError         = 233
	MsgTypeOnlineUsersList        = 241
	MsgTypeLiveMatchesList        = 242
	MsgTypeError                  = 250
)
