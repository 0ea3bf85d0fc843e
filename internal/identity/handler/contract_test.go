package handler

import (
	"os"
	"reflect"
	"regexp"
	"strings"
	"testing"
)

var (
	protoRPC     = regexp.MustCompile(`rpc (\w+)\((\w+)\) returns \((\w+)\);`)
	protoMessage = regexp.MustCompile(`(?s)message (\w+) \{(.*?)\n?\}`)
	protoField   = regexp.MustCompile(`(?m)^\s*[\w.]+ (\w+) = \d+;`)
)

type protoContract struct {
	rpcs     map[string][2]string
	messages map[string][]string
}

func loadProtoContract(t *testing.T, path string) protoContract {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	src := string(raw)
	c := protoContract{rpcs: map[string][2]string{}, messages: map[string][]string{}}
	for _, m := range protoRPC.FindAllStringSubmatch(src, -1) {
		c.rpcs[m[1]] = [2]string{m[2], m[3]}
	}
	for _, m := range protoMessage.FindAllStringSubmatch(src, -1) {
		var fields []string
		for _, f := range protoField.FindAllStringSubmatch(m[2], -1) {
			fields = append(fields, f[1])
		}
		c.messages[m[1]] = fields
	}
	return c
}

// jsonFields returns the JSON names of v's exported fields in declaration order.
func jsonFields(v any) []string {
	typ := reflect.TypeOf(v)
	var out []string
	for i := 0; i < typ.NumField(); i++ {
		name, _, _ := strings.Cut(typ.Field(i).Tag.Get("json"), ",")
		out = append(out, name)
	}
	return out
}

func TestAuthServiceMatchesProto(t *testing.T) {
	c := loadProtoContract(t, "../../../api/proto/credential/v1/auth.proto")

	if len(c.rpcs) != len(AuthServiceDesc.Methods) {
		t.Errorf("proto declares %d rpcs, service desc has %d", len(c.rpcs), len(AuthServiceDesc.Methods))
	}
	for _, m := range AuthServiceDesc.Methods {
		sig, ok := c.rpcs[m.MethodName]
		if !ok {
			t.Errorf("rpc %s missing from auth.proto", m.MethodName)
			continue
		}
		if sig[0] != m.MethodName+"Request" || sig[1] != m.MethodName+"Response" {
			t.Errorf("rpc %s uses %s/%s", m.MethodName, sig[0], sig[1])
		}
	}

	messages := []any{
		RegisterRequest{}, RegisterResponse{},
		LoginRequest{}, LoginResponse{}, Tokens{}, User{},
		RefreshRequest{}, RefreshResponse{},
		LogoutRequest{}, LogoutResponse{},
		ConfirmActivationRequest{}, ConfirmActivationResponse{},
		ResendActivationRequest{}, ResendActivationResponse{},
	}
	for _, v := range messages {
		name := reflect.TypeOf(v).Name()
		fields, ok := c.messages[name]
		if !ok {
			t.Errorf("message %s missing from auth.proto", name)
			continue
		}
		if got := jsonFields(v); !reflect.DeepEqual(got, fields) {
			t.Errorf("%s JSON fields = %v, proto fields = %v", name, got, fields)
		}
	}
}
