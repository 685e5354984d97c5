package presence

import (
	"sort"
	"sync"
)

// Registry mantiene el mapeo usuario -> sesión activa para saber quién es
// alcanzable en vivo. Es la única autoridad de presencia del proceso; el
// mapa interno nunca se expone.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]string // userID -> sessionID activo
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]string)}
}

// MarkOnline registra al usuario como alcanzable. Una sesión previa del
// mismo usuario queda reemplazada: política de una sesión activa, gana el
// último join.
func (r *Registry) MarkOnline(userID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[userID] = sessionID
}

// MarkOffline retira la presencia solo si sessionID sigue siendo la sesión
// registrada para ese usuario. Un disconnect tardío de una sesión ya
// reemplazada no puede desalojar la presencia de la sesión nueva. Devuelve
// si la entrada fue retirada.
func (r *Registry) MarkOffline(userID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[userID]
	if !ok || current != sessionID {
		return false
	}
	delete(r.sessions, userID)
	return true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[userID]
	return ok
}

// Snapshot devuelve el conjunto alcanzable actual, ordenado para que los
// broadcasts sean estables.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for userID := range r.sessions {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}
