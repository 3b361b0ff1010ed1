package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	. "github.com/trezcool/masomo-chat/apps/api/echo"
	"github.com/trezcool/masomo-chat/core/chat"
	"github.com/trezcool/masomo-chat/core/user"
	"github.com/trezcool/masomo-chat/tests"
)

func Test_chatApi(t *testing.T) {
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "cteacher", "", "Teacher123!", []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, usrRepo, "Student", "cstudent", "", "Student123!", []string{user.RoleStudent}, true)
	outsider := testutil.CreateUser(t, usrRepo, "", "coutsider", "", "Outsider123!", []string{user.RoleStudent}, true)

	testutil.CreateRoom(t, chatRepo, "api-open", "Open", "", 0, false, teacher, student)
	testutil.CreateRoom(t, chatRepo, "api-locked", "Locked", "Secret123!", 0, false, teacher)

	closed := testutil.CreateRoom(t, chatRepo, "api-closed", "Closed", "", 0, false, teacher)
	closed.IsActive = false
	if _, err := chatRepo.CreateRoom(context.Background(), closed); err != nil {
		t.Fatalf("CreateRoom() failed: %v", err)
	}

	teacherTkn := getToken(t, teacher)
	studentTkn := getToken(t, student)
	outsiderTkn := getToken(t, outsider)

	join := func(pwd string) []byte {
		return marchallObj(t, JoinRoomRequest{Password: pwd})
	}
	newRoom := func(nr chat.NewRoom) []byte {
		return marchallObj(t, nr)
	}

	tests := []httpTest{
		{name: "query: auth required", path: "/v1/chat/rooms", wantCode: http.StatusUnauthorized},
		{name: "query", path: "/v1/chat/rooms", token: studentTkn, wantCode: http.StatusOK},
		{
			name: "create: staff only", method: http.MethodPost, path: "/v1/chat/rooms", token: studentTkn,
			body: newRoom(chat.NewRoom{Name: "Nope"}), wantCode: http.StatusForbidden,
		},
		{
			name: "create: blank name", method: http.MethodPost, path: "/v1/chat/rooms", token: teacherTkn,
			body: newRoom(chat.NewRoom{Name: "   "}), wantCode: http.StatusBadRequest,
		},
		{
			name: "create: weak password", method: http.MethodPost, path: "/v1/chat/rooms", token: teacherTkn,
			body: newRoom(chat.NewRoom{Name: "Physics", Password: "12345678"}), wantCode: http.StatusBadRequest,
		},
		{
			name: "create", method: http.MethodPost, path: "/v1/chat/rooms", token: teacherTkn,
			body: newRoom(chat.NewRoom{Name: "Physics", Password: "Quantum-42", IsEncrypted: true}), wantCode: http.StatusCreated,
		},
		{
			name: "join: unknown room", method: http.MethodPost, path: "/v1/chat/rooms/nope/join", token: outsiderTkn,
			body: join(""), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: chat.ErrNotFound.Error()}),
		},
		{
			name: "join: inactive room", method: http.MethodPost, path: "/v1/chat/rooms/api-closed/join", token: outsiderTkn,
			body: join(""), wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: chat.ErrRoomInactive.Error()}),
		},
		{
			name: "join: wrong password", method: http.MethodPost, path: "/v1/chat/rooms/api-locked/join", token: outsiderTkn,
			body: join("guess"), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: chat.ErrUnauthorized.Error()}),
		},
		{
			name: "history: not a participant", path: "/v1/chat/rooms/api-locked/messages", token: outsiderTkn,
			wantCode: http.StatusForbidden,
		},
		{
			name: "join: password", method: http.MethodPost, path: "/v1/chat/rooms/api-locked/join", token: outsiderTkn,
			body: join("Secret123!"), wantCode: http.StatusNoContent,
		},
		{
			name: "history: participant", path: "/v1/chat/rooms/api-locked/messages", token: outsiderTkn,
			wantCode: http.StatusOK, wantData: []byte("[]"),
		},
		{
			name: "history: bad count", path: "/v1/chat/rooms/api-open/messages?count=abc", token: studentTkn,
			wantCode: http.StatusBadRequest,
		},
		{
			name: "token: not a participant", method: http.MethodPost, path: "/v1/chat/rooms/api-open/token", token: outsiderTkn,
			wantCode: http.StatusForbidden,
		},
		{name: "token", method: http.MethodPost, path: "/v1/chat/rooms/api-open/token", token: studentTkn, wantCode: http.StatusOK},
	}
	runHTTPTests(t, tests)
}

func Test_chatApi_roomToken(t *testing.T) {
	owner := testutil.CreateUser(t, usrRepo, "Owner", "tkowner", "", "Owner1234!", []string{user.RoleTeacher}, true)
	testutil.CreateRoom(t, chatRepo, "api-token", "Token", "", 0, false, owner)

	req, rec := newAuthRequest(http.MethodPost, "/v1/chat/rooms/api-token/token", getToken(t, owner))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("token: code = %v; want %v", rec.Code, http.StatusOK)
	}

	var resp RoomTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("token: decoding response: %v", err)
	}
	roomID, ok := tokens.RoomID(resp.Token)
	if !ok || roomID != "api-token" {
		t.Errorf("RoomID() = %q, %v; want %q, true", roomID, ok, "api-token")
	}
}

func Test_chatApi_listRooms(t *testing.T) {
	owner := testutil.CreateUser(t, usrRepo, "Lister", "lsowner", "", "Lister123!", []string{user.RoleTeacher}, true)
	testutil.CreateRoom(t, chatRepo, "api-list-pwd", "zz Listed", "Listing123!", 7, true, owner)

	req, rec := newAuthRequest(http.MethodGet, "/v1/chat/rooms", getToken(t, owner))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("query: code = %v; want %v", rec.Code, http.StatusOK)
	}

	var rooms []chat.RoomSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &rooms); err != nil {
		t.Fatalf("query: decoding response: %v", err)
	}
	var found *chat.RoomSummary
	for i := range rooms {
		if rooms[i].ID == "api-closed" {
			t.Errorf("query: inactive room listed")
		}
		if rooms[i].ID == "api-list-pwd" {
			found = &rooms[i]
		}
	}
	if found == nil {
		t.Fatalf("query: room %q not listed", "api-list-pwd")
	}
	if !found.HasPassword || !found.IsEncrypted || found.MaxParticipants != 7 || found.Occupancy != 0 {
		t.Errorf("query: summary = %+v", *found)
	}
}
