package wire

// Payload types reserved by the venue protocol. The numbering follows the
// venue's published message catalog; see Reconcile in internal/session for
// the one observed deviation.
const (
	PTHeartbeat uint32 = 51

	PTAppAuthReq     uint32 = 2100
	PTAppAuthRes     uint32 = 2101
	PTAccountAuthReq uint32 = 2102
	PTAccountAuthRes uint32 = 2103
	PTVersionReq     uint32 = 2104
	PTVersionRes     uint32 = 2105

	PTNewOrderReq    uint32 = 2106
	PTAmendSLTPReq   uint32 = 2110
	PTSymbolsListReq uint32 = 2114
	PTSymbolsListRes uint32 = 2115
	PTSymbolByIDReq  uint32 = 2116
	PTSymbolByIDRes  uint32 = 2117

	PTReconcileReq uint32 = 2124
	PTReconcileRes uint32 = 2125

	PTExecutionEvent uint32 = 2126

	PTSubscribeSpotsReq uint32 = 2127
	PTSubscribeSpotsRes uint32 = 2128
	PTSpotEvent         uint32 = 2131

	PTErrorRes uint32 = 2142

	PTAccountListReq uint32 = 2149
	PTAccountListRes uint32 = 2150
)

var payloadTypeNames = map[uint32]string{
	PTHeartbeat:         "HEARTBEAT",
	PTAppAuthReq:        "APP_AUTH_REQ",
	PTAppAuthRes:        "APP_AUTH_RES",
	PTAccountAuthReq:    "ACCOUNT_AUTH_REQ",
	PTAccountAuthRes:    "ACCOUNT_AUTH_RES",
	PTVersionReq:        "VERSION_REQ",
	PTVersionRes:        "VERSION_RES",
	PTNewOrderReq:       "NEW_ORDER_REQ",
	PTAmendSLTPReq:      "AMEND_POSITION_SLTP_REQ",
	PTSymbolsListReq:    "SYMBOLS_LIST_REQ",
	PTSymbolsListRes:    "SYMBOLS_LIST_RES",
	PTSymbolByIDReq:     "SYMBOL_BY_ID_REQ",
	PTSymbolByIDRes:     "SYMBOL_BY_ID_RES",
	PTReconcileReq:      "RECONCILE_REQ",
	PTReconcileRes:      "RECONCILE_RES",
	PTExecutionEvent:    "EXECUTION_EVENT",
	PTSubscribeSpotsReq: "SUBSCRIBE_SPOTS_REQ",
	PTSubscribeSpotsRes: "SUBSCRIBE_SPOTS_RES",
	PTSpotEvent:         "SPOT_EVENT",
	PTErrorRes:          "ERROR_RES",
	PTAccountListReq:    "ACCOUNT_LIST_REQ",
	PTAccountListRes:    "ACCOUNT_LIST_RES",
}

// PayloadTypeName returns a readable name for log lines.
func PayloadTypeName(pt uint32) string {
	if name, ok := payloadTypeNames[pt]; ok {
		return name
	}
	return "UNKNOWN"
}
