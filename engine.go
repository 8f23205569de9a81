// Chaturaji turn engine
//
// Four players (red, blue, yellow, green) share an 8x8 board and move in a
// fixed rotation. Each piece type follows a single geometric rule with no
// path blocking, and captures score points from a fixed per-type table.
// This is a deliberate skeleton of the full rules: a player with no legal
// move is never skipped, and check/checkmate are not modeled.

package main

// Piece types, a closed enum. Queen and rook only appear in the
// enochian opening.
const (
	PieceKing   = "king"
	PieceQueen  = "queen"
	PieceRook   = "rook"
	PieceBishop = "bishop"
	PieceKnight = "knight"
	PieceBoat   = "boat"
	PiecePawn   = "pawn"
)

// Capture values per piece type. Types absent from the table (queen,
// rook) score nothing when taken.
var piecePoints = map[string]int{
	PieceKing:   3,
	PieceKnight: 3,
	PieceBishop: 5,
	PieceBoat:   5,
	PiecePawn:   1,
}

// Piece is one piece on the board.
type Piece struct {
	Type  string `json:"type"`
	Color string `json:"color"`
}

// Square is a board coordinate: Row 0 is rank 1, Col 0 is file a.
type Square struct {
	Row int
	Col int
}

// parseSquare converts algebraic notation ("a1".."h8") to a Square.
func parseSquare(s string) (Square, bool) {
	if len(s) != 2 {
		return Square{}, false
	}
	col := int(s[0] - 'a')
	row := int(s[1] - '1')
	if col < 0 || col > 7 || row < 0 || row > 7 {
		return Square{}, false
	}
	return Square{Row: row, Col: col}, true
}

func (s Square) String() string {
	return string([]byte{byte('a' + s.Col), byte('1' + s.Row)})
}

// MoveResult is the outcome of applyMove. Success false means the move
// was rejected and no state changed.
type MoveResult struct {
	Success       bool           `json:"success"`
	Captured      string         `json:"captured,omitempty"`
	PointsEarned  int            `json:"points_earned"`
	CurrentPlayer string         `json:"current_player"`
	Scores        map[string]int `json:"scores"`
}

// Engine holds one room's board, turn, and score state. It is not
// safe for concurrent use; callers serialize on the owning room.
type Engine struct {
	board   [8][8]*Piece
	current int
	scores  map[string]int
}

func NewEngine(variant string) *Engine {
	e := &Engine{
		scores: map[string]int{"red": 0, "blue": 0, "yellow": 0, "green": 0},
	}

	switch variant {
	case VariantEnochian:
		e.setupEnochian()
	default:
		e.setupChaturaji()
	}

	return e
}

func (e *Engine) place(square, pieceType, color string) {
	sq, ok := parseSquare(square)
	if !ok {
		return
	}
	e.board[sq.Row][sq.Col] = &Piece{Type: pieceType, Color: color}
}

// setupChaturaji places each army in its own corner: red bottom-left
// along rank 1, blue top-left down the a-file, yellow top-right along
// rank 8, green bottom-right up the h-file.
func (e *Engine) setupChaturaji() {
	back := []string{PieceKing, PieceKnight, PieceBishop, PieceBoat}

	for i, p := range back {
		e.place(string([]byte{byte('a' + i), '1'}), p, "red")
		e.place(string([]byte{'a', byte('8' - i)}), p, "blue")
		e.place(string([]byte{byte('e' + i), '8'}), p, "yellow")
		e.place(string([]byte{'h', byte('1' + i)}), p, "green")
	}
	for i := 0; i < 4; i++ {
		e.place(string([]byte{byte('a' + i), '2'}), PiecePawn, "red")
		e.place(string([]byte{'b', byte('8' - i)}), PiecePawn, "blue")
		e.place(string([]byte{byte('e' + i), '7'}), PiecePawn, "yellow")
		e.place(string([]byte{'g', byte('1' + i)}), PiecePawn, "green")
	}
}

// setupEnochian places the four enochian armies. The traditional
// opening stacks king and bishop on the throne square; the board here
// holds one piece per square, so only the king takes the throne.
func (e *Engine) setupEnochian() {
	back := []string{PieceKing, PieceQueen, PieceKnight, PieceRook}

	for i, p := range back {
		e.place(string([]byte{byte('a' + i), '8'}), p, "yellow")
		e.place(string([]byte{'h', byte('8' - i)}), p, "blue")
		e.place(string([]byte{byte('h' - i), '1'}), p, "red")
		e.place(string([]byte{'a', byte('1' + i)}), p, "green")
	}
	for i := 0; i < 4; i++ {
		e.place(string([]byte{byte('a' + i), '7'}), PiecePawn, "yellow")
		e.place(string([]byte{'g', byte('8' - i)}), PiecePawn, "blue")
		e.place(string([]byte{byte('h' - i), '2'}), PiecePawn, "red")
		e.place(string([]byte{'b', byte('1' + i)}), PiecePawn, "green")
	}
}

// CurrentPlayer returns the index (0-3) of the color to move.
func (e *Engine) CurrentPlayer() int {
	return e.current
}

// CurrentColor returns the color to move.
func (e *Engine) CurrentColor() string {
	return colorPalette[e.current]
}

// Scores returns a copy of the score table.
func (e *Engine) Scores() map[string]int {
	out := make(map[string]int, len(e.scores))
	for color, points := range e.scores {
		out[color] = points
	}
	return out
}

// PieceAt returns the piece on the given square, or nil.
func (e *Engine) PieceAt(sq Square) *Piece {
	return e.board[sq.Row][sq.Col]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// pieceRule checks the geometric movement rule for one piece type.
// Rules are intentionally unblocked: intervening pieces are ignored.
func pieceRule(pieceType string, dr, dc int) bool {
	switch pieceType {
	case PieceBoat:
		// Two-square diagonal leap, the chaturaji signature move.
		return dr == 2 && dc == 2
	case PieceKing:
		return dr <= 1 && dc <= 1
	case PieceKnight:
		return (dr == 1 && dc == 2) || (dr == 2 && dc == 1)
	case PieceBishop:
		return dr == dc
	case PieceRook:
		return dr == 0 || dc == 0
	case PieceQueen:
		return dr == dc || dr == 0 || dc == 0
	case PiecePawn:
		return dr+dc == 1
	default:
		return false
	}
}

// ValidateMove reports whether moving from -> to is legal for the color
// currently on turn. It never mutates state.
func (e *Engine) ValidateMove(from, to Square) bool {
	if from == to {
		return false
	}

	piece := e.board[from.Row][from.Col]
	if piece == nil || piece.Color != e.CurrentColor() {
		return false
	}

	if target := e.board[to.Row][to.Col]; target != nil && target.Color == piece.Color {
		return false
	}

	return pieceRule(piece.Type, abs(to.Row-from.Row), abs(to.Col-from.Col))
}

// ApplyMove validates and executes a move. On success the mover scores
// any capture, the piece relocates, and the turn advances to the next
// color in the fixed rotation. Rotation is unconditional: there is no
// skip rule for players left without a legal move.
func (e *Engine) ApplyMove(from, to Square) MoveResult {
	if !e.ValidateMove(from, to) {
		return MoveResult{
			Success:       false,
			CurrentPlayer: e.CurrentColor(),
			Scores:        e.Scores(),
		}
	}

	piece := e.board[from.Row][from.Col]
	captured := e.board[to.Row][to.Col]

	points := 0
	capturedType := ""
	if captured != nil {
		capturedType = captured.Type
		points = piecePoints[captured.Type]
		e.scores[piece.Color] += points
	}

	e.board[to.Row][to.Col] = piece
	e.board[from.Row][from.Col] = nil

	e.current = (e.current + 1) % len(colorPalette)

	return MoveResult{
		Success:       true,
		Captured:      capturedType,
		PointsEarned:  points,
		CurrentPlayer: e.CurrentColor(),
		Scores:        e.Scores(),
	}
}

// BoardState returns the occupied squares keyed by algebraic notation,
// for snapshots and the external store.
func (e *Engine) BoardState() map[string]Piece {
	out := make(map[string]Piece)
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			if p := e.board[row][col]; p != nil {
				out[Square{Row: row, Col: col}.String()] = *p
			}
		}
	}
	return out
}
