package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	MsgTypeSendChallenge   = 111
	MsgTypeAcceptChallenge = 113
	MsgTypeSubmitAnswer    = 121
	MsgTypeGetOnlineUsers  = 131
)

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, data []byte) error {
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	token := flag.String("token", "", "JWT to authenticate with")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: "token=" + url.QueryEscape(*token)}
	log.Printf("Connecting to %s", u.Host)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			if len(message) < 4 {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			msgID := binary.BigEndian.Uint16(message[0:2])
			data := message[4:]
			log.Printf("<- RECV (ID: %d): %s", msgID, string(data))
		}
	}()

	log.Println("Sending online users request...")
	if err := send(c, MsgTypeGetOnlineUsers, []byte{}); err != nil {
		log.Println("Write error:", err)
		return
	}

	log.Println("Commands: 'challenge <userId>', 'accept <userId>', 'answer <roomId> <questionId> <index>'")

	// Write loop
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			fields := strings.Fields(text)
			if len(fields) == 0 {
				continue
			}

			switch fields[0] {
			case "challenge", "accept":
				if len(fields) < 2 {
					log.Println("Usage:", fields[0], "<userId>")
					continue
				}
				payload, _ := json.Marshal(map[string]interface{}{
					"toUserId": fields[1],
					"challengeData": map[string]interface{}{
						"theme":         "World History",
						"questionCount": 5,
					},
				})
				msgID := uint16(MsgTypeSendChallenge)
				if fields[0] == "accept" {
					msgID = MsgTypeAcceptChallenge
				}
				if err := send(c, msgID, payload); err != nil {
					log.Println("Write error:", err)
					return
				}
				log.Println("-> SENT:", fields[0], fields[1])
			case "answer":
				if len(fields) < 4 {
					log.Println("Usage: answer <roomId> <questionId> <index>")
					continue
				}
				payload, _ := json.Marshal(map[string]interface{}{
					"roomId":      fields[1],
					"questionId":  atoi(fields[2]),
					"answerIndex": atoi(fields[3]),
					"timeLeft":    10,
				})
				if err := send(c, MsgTypeSubmitAnswer, payload); err != nil {
					log.Println("Write error:", err)
					return
				}
				log.Println("-> SENT: answer")
			default:
				log.Println("Unknown command:", fields[0])
			}
		}
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
