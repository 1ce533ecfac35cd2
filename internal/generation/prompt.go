package generation

import (
	"fmt"

	"github.com/cbroglie/mustache"
)

// SystemInstruction is sent ahead of every user prompt
const SystemInstruction = `Aja como um assistente administrativo experiente e profissional especializado em redação oficial.

Sua tarefa é redigir ofícios, memorandos ou e-mails formais com base no pedido do usuário.

Diretrizes:
1.  **Estrutura:** Siga a estrutura padrão de redação oficial (Cabeçalho, Saudação, Corpo, Fechamento, Assinatura).
2.  **Tom:** Mantenha um tom profissional, respeitoso e direto, adequado para comunicação corporativa ou governamental.
3.  **Placeholders:** Se o usuário não fornecer nomes ou cargos específicos, use placeholders claros como "[Nome do Destinatário]", "[Cargo]", "[Data]", etc.
4.  **Formatação:** Use espaçamento adequado.

Se o usuário pedir algo que não seja um ofício ou e-mail formal, explique educadamente que sua função é criar documentos oficiais e tente ajudar da melhor forma possível dentro desse escopo.

Retorne o texto do documento formatado.`

// userTurnTemplate uses a triple mustache so the prompt is not HTML-escaped
const userTurnTemplate = "Pedido do usuário: {{{prompt}}}"

var userTurn, userTurnErr = mustache.ParseString(userTurnTemplate)

// RenderUserTurn wraps the raw prompt for the model
func RenderUserTurn(prompt string) (string, error) {
	if userTurnErr != nil {
		return "", fmt.Errorf("parse user turn template: %w", userTurnErr)
	}
	out, err := userTurn.Render(map[string]string{"prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("render user turn: %w", err)
	}
	return out, nil
}
