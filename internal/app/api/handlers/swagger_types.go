package handlers

// RespOK documents the generic success envelope for swagger.
type RespOK struct {
	Code    int    `json:"code" example:"0"`
	Message string `json:"message" example:"ok"`
	Data    any    `json:"data"`
}
