package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const Version = "1.0"

// Request types.
const (
	TypeJoin        = "JOIN"
	TypeQuit        = "QUIT"
	TypeClaim       = "CLAIM"
	TypeUnclaim     = "UNCLAIM"
	TypeSetRule     = "SET_RULE"
	TypeAddTrust    = "ADD_TRUST"
	TypeRemoveTrust = "REMOVE_TRUST"
	TypeInfo        = "INFO"
	TypeCheck       = "CHECK"
	TypeReload      = "RELOAD"

	TypeAdminSetOwner    = "ADMIN_SET_OWNER"
	TypeAdminRemoveClaim = "ADMIN_REMOVE_CLAIM"
	TypeAdminUnclaim     = "ADMIN_UNCLAIM"
	TypeAdminRemoveAll   = "ADMIN_REMOVE_ALL"

	TypeResult = "RESULT"
)

// Check kinds.
const (
	CheckBypass         = "BYPASS"
	CheckBlockChange    = "BLOCK_CHANGE"
	CheckBlockInteract  = "BLOCK_INTERACT"
	CheckProjectileHit  = "PROJECTILE_HIT"
	CheckEntityInteract = "ENTITY_INTERACT"
	CheckEntityDamage   = "ENTITY_DAMAGE"
	CheckTarget         = "TARGET"
	CheckHangingBreak   = "HANGING_BREAK"
	CheckWorldEffect    = "WORLD_EFFECT"
	CheckPiston         = "PISTON"
	CheckExplosion      = "EXPLOSION"
	CheckView           = "VIEW"
)

//go:embed schemas/request.schema.json
var requestSchemaJSON string

var (
	requestSchemaOnce sync.Once
	requestSchema     *jsonschema.Schema
	requestSchemaErr  error
)

func compiledRequestSchema() (*jsonschema.Schema, error) {
	requestSchemaOnce.Do(func() {
		requestSchema, requestSchemaErr = jsonschema.CompileString("request.schema.json", requestSchemaJSON)
	})
	return requestSchema, requestSchemaErr
}

// DecodeRequest validates b against the request schema and decodes it.
func DecodeRequest(b []byte) (Request, error) {
	var req Request
	s, err := compiledRequestSchema()
	if err != nil {
		return req, fmt.Errorf("request schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return req, err
	}
	if err := s.Validate(doc); err != nil {
		return req, err
	}
	if err := json.Unmarshal(b, &req); err != nil {
		return req, err
	}
	return req, nil
}

// Reply builds a response for req.
func Reply(req Request) Response {
	return Response{
		Type:            TypeResult,
		ProtocolVersion: Version,
		ReqID:           req.ReqID,
	}
}

// Fail builds a rejected response for req.
func Fail(req Request, code, message string) Response {
	r := Reply(req)
	r.Code = code
	r.Message = message
	return r
}
