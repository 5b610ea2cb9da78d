// File: internal/infra/graphql/operation.go
package graphql

import (
	"encoding/json"

	"graphql-chat-client/internal/domain/ports/adapter"
)

// The fixed operation catalog against the Hasura-shaped backend. The chat list
// preview rides on the nested messages(limit: 1) selection.

const getChatsDoc = `query GetChats {
  chats(order_by: {created_at: desc}) {
    id
    title
    created_at
    messages(limit: 1, order_by: {created_at: desc}) {
      id
      chat_id
      text
      sender
      created_at
    }
  }
}`

const subscribeChatsDoc = `subscription SubscribeChats {
  chats(order_by: {created_at: desc}) {
    id
    title
    created_at
    messages(limit: 1, order_by: {created_at: desc}) {
      id
      chat_id
      text
      sender
      created_at
    }
  }
}`

const getMessagesDoc = `query GetMessages($chat_id: uuid!) {
  messages(where: {chat_id: {_eq: $chat_id}}, order_by: {created_at: asc}) {
    id
    chat_id
    text
    sender
    created_at
  }
}`

const subscribeMessagesDoc = `subscription SubscribeMessages($chat_id: uuid!) {
  messages(where: {chat_id: {_eq: $chat_id}}, order_by: {created_at: asc}) {
    id
    chat_id
    text
    sender
    created_at
  }
}`

const createChatDoc = `mutation CreateChat($title: String) {
  insert_chats_one(object: {title: $title}) {
    id
    title
    created_at
  }
}`

const deleteChatDoc = `mutation DeleteChat($chat_id: uuid!) {
  delete_chats_by_pk(id: $chat_id) {
    id
  }
}`

const insertMessageDoc = `mutation InsertMessage($chat_id: uuid!, $text: String!, $sender: String!) {
  insert_messages_one(object: {chat_id: $chat_id, text: $text, sender: $sender}) {
    id
    chat_id
    text
    sender
    created_at
  }
}`

const sendMessageDoc = `mutation SendMessage($chat_id: uuid!, $text: String!) {
  sendMessage(input: {chat_id: $chat_id, text: $text}) {
    id
    chat_id
    text
    sender
    created_at
  }
}`

func GetChats() adapter.Operation {
	return adapter.Operation{Name: "GetChats", Kind: adapter.KindQuery, Document: getChatsDoc}
}

func SubscribeChats() adapter.Operation {
	return adapter.Operation{Name: "SubscribeChats", Kind: adapter.KindSubscription, Document: subscribeChatsDoc}
}

func GetMessages(chatID string) adapter.Operation {
	return adapter.Operation{
		Name: "GetMessages", Kind: adapter.KindQuery, Document: getMessagesDoc,
		Variables: map[string]any{"chat_id": chatID},
	}
}

func SubscribeMessages(chatID string) adapter.Operation {
	return adapter.Operation{
		Name: "SubscribeMessages", Kind: adapter.KindSubscription, Document: subscribeMessagesDoc,
		Variables: map[string]any{"chat_id": chatID},
	}
}

func CreateChat(title string) adapter.Operation {
	vars := map[string]any{"title": nil}
	if title != "" {
		vars["title"] = title
	}
	return adapter.Operation{Name: "CreateChat", Kind: adapter.KindMutation, Document: createChatDoc, Variables: vars}
}

func DeleteChat(chatID string) adapter.Operation {
	return adapter.Operation{
		Name: "DeleteChat", Kind: adapter.KindMutation, Document: deleteChatDoc,
		Variables: map[string]any{"chat_id": chatID},
	}
}

func InsertMessage(chatID, text, sender string) adapter.Operation {
	return adapter.Operation{
		Name: "InsertMessage", Kind: adapter.KindMutation, Document: insertMessageDoc,
		Variables: map[string]any{"chat_id": chatID, "text": text, "sender": sender},
	}
}

func SendMessageAction(chatID, text string) adapter.Operation {
	return adapter.Operation{
		Name: "SendMessage", Kind: adapter.KindMutation, Document: sendMessageDoc,
		Variables: map[string]any{"chat_id": chatID, "text": text},
	}
}

// AsQuery maps a live subscription to its one-shot twin for the polling
// fallback used when the streaming channel is disabled.
func AsQuery(op adapter.Operation) (adapter.Operation, bool) {
	switch op.Name {
	case "SubscribeChats":
		q := GetChats()
		return q, true
	case "SubscribeMessages":
		q := op
		q.Name = "GetMessages"
		q.Kind = adapter.KindQuery
		q.Document = getMessagesDoc
		return q, true
	default:
		return op, false
	}
}

// CacheKey identifies one (operation, variables) pair. Map marshaling is
// key-sorted, so equal variable sets produce equal keys.
func CacheKey(op adapter.Operation) string {
	if len(op.Variables) == 0 {
		return op.Name
	}
	b, err := json.Marshal(op.Variables)
	if err != nil {
		return op.Name
	}
	return op.Name + ":" + string(b)
}
