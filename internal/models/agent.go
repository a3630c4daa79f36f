package models

import "strings"

// Agent is one of the fixed decision identities taking part in a cycle.
type Agent string

const (
	AgentChatGPT  Agent = "chatgpt"
	AgentGemini   Agent = "gemini"
	AgentGrok     Agent = "grok"
	AgentDeepSeek Agent = "deepseek"
)

// AllAgents is the fixed order in which agents are polled during every phase.
var AllAgents = []Agent{AgentChatGPT, AgentGemini, AgentGrok, AgentDeepSeek}

var agentNames = map[Agent]string{
	AgentChatGPT:  "ChatGPT",
	AgentGemini:   "Gemini",
	AgentGrok:     "Grok",
	AgentDeepSeek: "DeepSeek",
}

func (a Agent) Valid() bool {
	_, ok := agentNames[a]
	return ok
}

func (a Agent) DisplayName() string {
	if name, ok := agentNames[a]; ok {
		return name
	}
	return string(a)
}

// Index is the agent's position in AllAgents, or -1.
func (a Agent) Index() int {
	for i, item := range AllAgents {
		if item == a {
			return i
		}
	}
	return -1
}

func ParseAgent(raw string) (Agent, bool) {
	a := Agent(strings.ToLower(strings.TrimSpace(raw)))
	return a, a.Valid()
}
