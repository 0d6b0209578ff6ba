package repo

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"

	"crowdfill/internal/domain"
)

const postColumns = `id,item_id,order_id,quantity,suggested_price,deadline,status,accepted_bid_id,job_id,posted_by,created_at,updated_at`

const bidColumns = `id,post_id,team_id,price_per_unit,note,status,created_at,updated_at`

func scanPost(row rowScanner) (domain.OutsourcePost, error) {
	var p domain.OutsourcePost
	var status string
	var deadline, bidID, jobID sql.NullString
	err := row.Scan(&p.ID, &p.ItemID, &p.OrderID, &p.Quantity, &p.SuggestedPricePerUnit, &deadline, &status, &bidID, &jobID,
		&p.PostedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Status = domain.PostStatus(status)
	p.Deadline = stringPtr(deadline)
	p.AcceptedBidID = stringPtr(bidID)
	p.JobID = stringPtr(jobID)
	return p, nil
}

func scanBid(row rowScanner) (domain.Bid, error) {
	var b domain.Bid
	var status string
	var note sql.NullString
	err := row.Scan(&b.ID, &b.PostID, &b.TeamID, &b.PricePerUnit, &note, &status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return b, err
	}
	b.Note = note.String
	b.Status = domain.BidStatus(status)
	return b, nil
}

func (r Repo) InsertPost(ctx context.Context, tx *sql.Tx, p domain.OutsourcePost) error {
	_, err := r.exec(ctx, tx, "insert post", `INSERT INTO outsource_posts(`+postColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ItemID, p.OrderID, p.Quantity, p.SuggestedPricePerUnit, nullableStringPtr(p.Deadline), string(p.Status),
		nullableStringPtr(p.AcceptedBidID), nullableStringPtr(p.JobID), p.PostedBy, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) UpdatePost(ctx context.Context, tx *sql.Tx, p domain.OutsourcePost) error {
	n, err := r.exec(ctx, tx, "update post", `UPDATE outsource_posts SET status=?, accepted_bid_id=?, job_id=?, updated_at=? WHERE id=?`,
		string(p.Status), nullableStringPtr(p.AcceptedBidID), nullableStringPtr(p.JobID), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("post", p.ID)
	}
	return nil
}

func (r Repo) GetPost(ctx context.Context, id string) (domain.OutsourcePost, error) {
	return r.getPost(ctx, r.DB, id)
}

func (r Repo) GetPostTx(ctx context.Context, tx *sql.Tx, id string) (domain.OutsourcePost, error) {
	return r.getPost(ctx, tx, id)
}

func (r Repo) getPost(ctx context.Context, q querier, id string) (domain.OutsourcePost, error) {
	p, err := scanPost(q.QueryRowContext(ctx, r.q(`SELECT `+postColumns+` FROM outsource_posts WHERE id=?`), id))
	if err := notFound(err, "post", id); err != nil {
		return p, err
	}
	return p, nil
}

type PostFilters struct {
	ItemID string
	Status string
	Page
}

func (r Repo) ListPosts(ctx context.Context, f PostFilters) ([]domain.OutsourcePost, error) {
	return r.listPosts(ctx, r.DB, f)
}

func (r Repo) ListOpenPostsTx(ctx context.Context, tx *sql.Tx, itemID string) ([]domain.OutsourcePost, error) {
	return r.listPosts(ctx, tx, PostFilters{ItemID: itemID, Status: string(domain.PostOpen)})
}

func (r Repo) listPosts(ctx context.Context, q querier, f PostFilters) ([]domain.OutsourcePost, error) {
	var clauses []string
	var args []any
	if f.ItemID != "" {
		clauses = append(clauses, "item_id=?")
		args = append(args, f.ItemID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + postColumns + ` FROM outsource_posts ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := q.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, eris.Wrap(err, "repo: list posts")
	}
	defer rows.Close()
	var res []domain.OutsourcePost
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, eris.Wrap(err, "repo: scan post")
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpsertBid stores a team's bid; a second bid from the same team replaces the
// first and keeps its id.
func (r Repo) UpsertBid(ctx context.Context, tx *sql.Tx, b domain.Bid) error {
	_, err := r.exec(ctx, tx, "upsert bid", `INSERT INTO bids(`+bidColumns+`) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(post_id, team_id) DO UPDATE SET price_per_unit=excluded.price_per_unit, note=excluded.note, status=excluded.status, updated_at=excluded.updated_at`,
		b.ID, b.PostID, b.TeamID, b.PricePerUnit, nullable(b.Note), string(b.Status), b.CreatedAt, b.UpdatedAt)
	return err
}

func (r Repo) GetBidTx(ctx context.Context, tx *sql.Tx, id string) (domain.Bid, error) {
	return r.getBid(ctx, tx, `id=?`, id)
}

func (r Repo) GetBid(ctx context.Context, id string) (domain.Bid, error) {
	return r.getBid(ctx, r.DB, `id=?`, id)
}

func (r Repo) GetTeamBidTx(ctx context.Context, tx *sql.Tx, postID, teamID string) (domain.Bid, error) {
	return r.getBid(ctx, tx, `post_id=? AND team_id=?`, postID, teamID)
}

func (r Repo) getBid(ctx context.Context, q querier, where string, args ...any) (domain.Bid, error) {
	b, err := scanBid(q.QueryRowContext(ctx, r.q(`SELECT `+bidColumns+` FROM bids WHERE `+where), args...))
	if err := notFound(err, "bid", args[0].(string)); err != nil {
		return b, err
	}
	return b, nil
}

func (r Repo) ListBids(ctx context.Context, postID string) ([]domain.Bid, error) {
	return r.listBids(ctx, r.DB, postID)
}

func (r Repo) ListBidsTx(ctx context.Context, tx *sql.Tx, postID string) ([]domain.Bid, error) {
	return r.listBids(ctx, tx, postID)
}

func (r Repo) listBids(ctx context.Context, q querier, postID string) ([]domain.Bid, error) {
	rows, err := q.QueryContext(ctx, r.q(`SELECT `+bidColumns+` FROM bids WHERE post_id=? ORDER BY created_at, id`), postID)
	if err != nil {
		return nil, eris.Wrap(err, "repo: list bids")
	}
	defer rows.Close()
	var res []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, eris.Wrap(err, "repo: scan bid")
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (r Repo) SetBidStatus(ctx context.Context, tx *sql.Tx, id string, status domain.BidStatus, updatedAt string) error {
	_, err := r.exec(ctx, tx, "set bid status", `UPDATE bids SET status=?, updated_at=? WHERE id=?`, string(status), updatedAt, id)
	return err
}
