package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/vendetta/api/internal/model"
	"github.com/freeeve/vendetta/api/internal/repository"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// missionDue is when a mission next needs resolving: arrival for an outbound
// mission, return for a REGRESO.
func missionDue(m *model.Mission) time.Time {
	if m.Type == vendetta.MissionReturn && m.ReturnsAt != nil {
		return *m.ReturnsAt
	}
	return m.ArrivesAt
}

// resolveMissions handles every due mission in order of its due time.
func (r *run) resolveMissions(ctx context.Context, state *model.UserState) {
	due := make([]model.Mission, 0, len(state.Missions))
	for _, m := range state.Missions {
		if !missionDue(&m).After(r.now) {
			due = append(due, m)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return missionDue(&due[i]).Before(missionDue(&due[j]))
	})
	for _, m := range due {
		r.inTx(ctx, "mission", m.ID, func(tx repository.GameTx, ob *outbox) (bool, error) {
			return r.resolveMission(ctx, tx, ob, m.ID)
		})
	}
}

func (r *run) resolveMission(ctx context.Context, tx repository.GameTx, ob *outbox, id string) (bool, error) {
	m, err := tx.LockMission(ctx, id)
	if err != nil || m == nil {
		return false, err
	}
	if missionDue(m).After(r.now) {
		return false, nil
	}
	if m.Type == vendetta.MissionReturn {
		return true, r.completeReturn(ctx, tx, ob, m)
	}

	target, err := tx.PropertyAt(ctx, m.Target)
	if err != nil {
		return false, err
	}
	if m.Type.Hostile() && target == nil {
		return true, r.sendBack(ctx, tx, m, m.Troops, m.Resources)
	}

	switch m.Type {
	case vendetta.MissionAttack:
		if target.UserID == m.UserID {
			return true, r.sendBack(ctx, tx, m, m.Troops, m.Resources)
		}
		return true, r.resolveAttack(ctx, tx, ob, m, target)
	case vendetta.MissionSpy:
		if target.UserID == m.UserID {
			return true, r.sendBack(ctx, tx, m, m.Troops, m.Resources)
		}
		return true, r.resolveEspionage(ctx, tx, ob, m, target)
	case vendetta.MissionTransport:
		return true, r.resolveTransport(ctx, tx, ob, m, target)
	case vendetta.MissionOccupy:
		if target != nil {
			return true, r.sendBack(ctx, tx, m, m.Troops, m.Resources)
		}
		return true, r.resolveOccupy(ctx, tx, ob, m)
	case vendetta.MissionDefend:
		if target == nil || target.UserID != m.UserID {
			return true, r.sendBack(ctx, tx, m, m.Troops, m.Resources)
		}
		if err := r.station(ctx, tx, target.ID, m.Troops); err != nil {
			return false, err
		}
		_, err := tx.DeleteMission(ctx, m.ID)
		return true, err
	}
	return false, invariant("mission "+m.ID, "unknown type %q", m.Type)
}

// sendBack turns the mission into a REGRESO that travels as long as the way out.
func (r *run) sendBack(ctx context.Context, tx repository.GameTx, m *model.Mission, troops []vendetta.UnitCount, res vendetta.Resources) error {
	if err := tx.DeleteIncomingAttackByMission(ctx, m.ID); err != nil {
		return err
	}
	travel := m.ArrivesAt.Sub(m.DepartedAt)
	returns := r.now.Add(travel)
	m.Type = vendetta.MissionReturn
	m.Troops = vendetta.MergeUnits(nil, troops)
	m.Resources = res
	m.ReturnsAt = &returns
	return tx.UpdateMission(ctx, m)
}

// station adds units to a property, each in the bucket its type belongs to.
func (r *run) station(ctx context.Context, tx repository.GameTx, propertyID string, units []vendetta.UnitCount) error {
	for _, u := range units {
		if u.Quantity <= 0 {
			continue
		}
		cfg, err := r.svc.catalog.Troop(u.TroopID)
		if err != nil {
			return invariant("property "+propertyID, "%v", err)
		}
		if err := tx.AddTroops(ctx, propertyID, u.TroopID, u.Quantity, cfg.IsSecurity()); err != nil {
			return err
		}
	}
	return nil
}

// deposit adds resources to a locked property. Amounts above storage are
// discarded, but a balance already above storage is kept.
func (r *run) deposit(ctx context.Context, tx repository.GameTx, p *model.Property, rooms map[string]int, res vendetta.Resources) (vendetta.Resources, error) {
	capacity := r.svc.catalog.StorageCapacity(rooms)
	var next vendetta.Resources
	for _, k := range vendetta.AllResourceKinds {
		cur := p.Resources.Get(k)
		next.Set(k, min(cur+res.Get(k), max(cur, capacity.Get(k))))
	}
	delivered := next.Sub(p.Resources)
	if err := tx.UpdateResources(ctx, p.ID, next); err != nil {
		return vendetta.Resources{}, err
	}
	p.Resources = next
	return delivered, nil
}

func (r *run) completeReturn(ctx context.Context, tx repository.GameTx, ob *outbox, m *model.Mission) error {
	if _, err := tx.DeleteMission(ctx, m.ID); err != nil {
		return err
	}
	origin, err := tx.LockProperty(ctx, m.OriginPropertyID)
	if err != nil {
		return err
	}
	if origin == nil || origin.UserID != m.UserID {
		r.log.Warn().Str("missionId", m.ID).Msg("Origin property gone, returning force lost")
		return nil
	}
	rooms, err := r.svc.integrateLocked(ctx, tx, origin, r.now)
	if err != nil {
		return err
	}
	if err := r.station(ctx, tx, origin.ID, m.Troops); err != nil {
		return err
	}
	delivered, err := r.deposit(ctx, tx, origin, rooms, m.Resources)
	if err != nil {
		return err
	}
	ob.add(m.UserID, EventMissionReturned, map[string]any{
		"missionId":  m.ID,
		"propertyId": origin.ID,
		"troops":     m.Troops,
		"resources":  delivered,
	})
	return nil
}

// sides builds the combatants of a hostile arrival.
func (r *run) sides(ctx context.Context, tx repository.GameTx, m *model.Mission, target *model.Property) (att, def vendetta.Side, off, sec map[string]int64, err error) {
	attTrainings, err := tx.TrainingLevels(ctx, m.UserID)
	if err != nil {
		return
	}
	attProps, err := tx.CountProperties(ctx, m.UserID)
	if err != nil {
		return
	}
	defTrainings, err := tx.TrainingLevels(ctx, target.UserID)
	if err != nil {
		return
	}
	defProps, err := tx.CountProperties(ctx, target.UserID)
	if err != nil {
		return
	}
	off, sec, err = tx.Troops(ctx, target.ID)
	if err != nil {
		return
	}
	ps := model.PropertyState{Troops: off, Security: sec}
	att = vendetta.Side{Troops: m.Troops, Trainings: attTrainings, PropertyCount: attProps}
	def = vendetta.Side{Troops: ps.Units(), Trainings: defTrainings, PropertyCount: defProps}
	return
}

// applyCasualties removes the defender's dead from its buckets, offensive first.
func applyCasualties(ctx context.Context, tx repository.GameTx, propertyID string, off, sec map[string]int64, survivors []vendetta.UnitCount) error {
	left := make(map[string]int64, len(survivors))
	for _, u := range survivors {
		left[u.TroopID] += u.Quantity
	}
	ids := make([]string, 0, len(off)+len(sec))
	seen := make(map[string]bool)
	for _, bucket := range []map[string]int64{off, sec} {
		for id := range bucket {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		lost := off[id] + sec[id] - left[id]
		if lost <= 0 {
			continue
		}
		fromOff := min(lost, off[id])
		if fromOff > 0 {
			if err := tx.AddTroops(ctx, propertyID, id, -fromOff, false); err != nil {
				return err
			}
		}
		if rest := lost - fromOff; rest > 0 {
			if err := tx.AddTroops(ctx, propertyID, id, -rest, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) resolveAttack(ctx context.Context, tx repository.GameTx, ob *outbox, m *model.Mission, target *model.Property) error {
	defRooms, err := r.svc.integrateLocked(ctx, tx, target, r.now)
	if err != nil {
		return err
	}
	att, def, off, sec, err := r.sides(ctx, tx, m, target)
	if err != nil {
		return err
	}
	cat := r.svc.catalog
	report, err := cat.ResolveBattle(att, def, defRooms)
	if err != nil {
		return invariant("mission "+m.ID, "%v", err)
	}
	attSurvivors, defSurvivors := report.Survivors()
	if err := applyCasualties(ctx, tx, target.ID, off, sec, defSurvivors); err != nil {
		return err
	}

	carried := m.Resources
	if report.Winner == vendetta.WinnerAttacker {
		capacity := cat.CarryCapacity(attSurvivors, att.Trainings) - carried.Total()
		loot := vendetta.ComputeLoot(max(0, capacity), target.Resources, cat.SafeStorage(defRooms))
		if !loot.IsZero() {
			if err := tx.UpdateResources(ctx, target.ID, target.Resources.Sub(loot)); err != nil {
				return err
			}
			carried = carried.Add(loot)
		}
		report.SetLoot(loot)
	}

	if err := tx.AddHonor(ctx, m.UserID, report.FinalStats.Defender.PointsLost); err != nil {
		return err
	}
	if err := tx.AddHonor(ctx, target.UserID, report.FinalStats.Attacker.PointsLost); err != nil {
		return err
	}

	details, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode battle report: %w", err)
	}
	rec := &model.BattleReport{
		ID:               uuid.New().String(),
		AttackerUserID:   m.UserID,
		DefenderUserID:   target.UserID,
		TargetPropertyID: target.ID,
		Coords:           target.Coords,
		Winner:           string(report.Winner),
		Details:          details,
		CreatedAt:        r.now,
	}
	if err := tx.InsertBattleReport(ctx, rec); err != nil {
		return err
	}
	for _, userID := range []string{m.UserID, target.UserID} {
		msg := &model.Message{
			ID:        uuid.New().String(),
			UserID:    userID,
			Kind:      model.MessageBattle,
			Subject:   fmt.Sprintf("Battle at %d:%d:%d", target.Coords.Ciudad, target.Coords.Barrio, target.Coords.Edificio),
			ReportID:  rec.ID,
			Body:      report.FinalMessage,
			CreatedAt: r.now,
		}
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		ob.add(userID, EventBattleReport, map[string]any{"reportId": rec.ID, "winner": rec.Winner})
	}

	return r.sendBack(ctx, tx, m, attSurvivors, carried)
}

func (r *run) resolveEspionage(ctx context.Context, tx repository.GameTx, ob *outbox, m *model.Mission, target *model.Property) error {
	rooms, err := r.svc.integrateLocked(ctx, tx, target, r.now)
	if err != nil {
		return err
	}
	att, def, off, sec, err := r.sides(ctx, tx, m, target)
	if err != nil {
		return err
	}
	cat := r.svc.catalog
	intel := vendetta.Intel{Resources: target.Resources}
	for _, id := range cat.RoomIDs() {
		if level := rooms[id]; level > 0 {
			intel.Buildings = append(intel.Buildings, vendetta.BuildingIntel{ID: id, Name: cat.Rooms[id].Name, Level: level})
		}
	}

	res, err := cat.ResolveEspionage(att, def, intel)
	if err != nil {
		return invariant("mission "+m.ID, "%v", err)
	}
	_, defSurvivors := res.Details.Combat.Survivors()
	if err := applyCasualties(ctx, tx, target.ID, off, sec, defSurvivors); err != nil {
		return err
	}

	details, err := json.Marshal(res.Details)
	if err != nil {
		return fmt.Errorf("encode espionage report: %w", err)
	}
	rec := &model.EspionageReport{
		ID:               uuid.New().String(),
		AttackerUserID:   m.UserID,
		DefenderUserID:   target.UserID,
		TargetPropertyID: target.ID,
		Coords:           target.Coords,
		Success:          res.Success,
		Details:          details,
		CreatedAt:        r.now,
	}
	if err := tx.InsertEspionageReport(ctx, rec); err != nil {
		return err
	}

	where := fmt.Sprintf("%d:%d:%d", target.Coords.Ciudad, target.Coords.Barrio, target.Coords.Edificio)
	notices := []*model.Message{{
		UserID:   m.UserID,
		Subject:  "Espionage report " + where,
		ReportID: rec.ID,
	}}
	if !res.Success {
		notices = append(notices, &model.Message{
			UserID:  target.UserID,
			Subject: "Spies caught at " + where,
		})
	}
	for _, msg := range notices {
		msg.ID = uuid.New().String()
		msg.Kind = model.MessageEspionage
		msg.CreatedAt = r.now
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
	}
	ob.add(m.UserID, EventEspionageReport, map[string]any{"reportId": rec.ID, "success": rec.Success})

	return r.sendBack(ctx, tx, m, res.Returning, m.Resources)
}

func (r *run) resolveTransport(ctx context.Context, tx repository.GameTx, ob *outbox, m *model.Mission, target *model.Property) error {
	rooms, err := r.svc.integrateLocked(ctx, tx, target, r.now)
	if err != nil {
		return err
	}
	delivered, err := r.deposit(ctx, tx, target, rooms, m.Resources)
	if err != nil {
		return err
	}
	if target.UserID != m.UserID {
		msg := &model.Message{
			ID:        uuid.New().String(),
			UserID:    target.UserID,
			Kind:      model.MessageTransport,
			Subject:   "Resources delivered",
			Body:      fmt.Sprintf("armas %d, municion %d, alcohol %d, dolares %d", delivered.Armas, delivered.Municion, delivered.Alcohol, delivered.Dolares),
			CreatedAt: r.now,
		}
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
	}
	ob.add(target.UserID, EventTransport, map[string]any{"propertyId": target.ID, "resources": delivered})
	return r.sendBack(ctx, tx, m, m.Troops, vendetta.Resources{})
}

// resolveOccupy founds a colony on a free slot. The occupation troops settle
// and are consumed; any escort is stationed in the new property.
func (r *run) resolveOccupy(ctx context.Context, tx repository.GameTx, ob *outbox, m *model.Mission) error {
	cat := r.svc.catalog
	rules := cat.Rules
	start := vendetta.Resources{
		Armas:    rules.ColonyResources,
		Municion: rules.ColonyResources,
		Alcohol:  rules.ColonyResources,
		Dolares:  rules.ColonyResources,
	}
	p := &model.Property{
		ID:        uuid.New().String(),
		UserID:    m.UserID,
		Name:      fmt.Sprintf("Colony %d:%d:%d", m.Target.Ciudad, m.Target.Barrio, m.Target.Edificio),
		Coords:    m.Target,
		Resources: start.Add(m.Resources),
		UpdatedAt: r.now,
		CreatedAt: r.now,
	}
	rooms := make(map[string]int, len(cat.RoomIDs()))
	for _, id := range cat.RoomIDs() {
		rooms[id] = rules.ColonyRoomLevel
	}
	if err := tx.CreateProperty(ctx, p, rooms); err != nil {
		return err
	}

	var escort []vendetta.UnitCount
	for _, u := range m.Troops {
		cfg, err := cat.Troop(u.TroopID)
		if err != nil {
			return invariant("mission "+m.ID, "%v", err)
		}
		if cfg.Type != vendetta.TroopOccupy {
			escort = append(escort, u)
		}
	}
	if err := r.station(ctx, tx, p.ID, escort); err != nil {
		return err
	}
	if _, err := tx.DeleteMission(ctx, m.ID); err != nil {
		return err
	}
	msg := &model.Message{
		ID:        uuid.New().String(),
		UserID:    m.UserID,
		Kind:      model.MessageColony,
		Subject:   "New property founded",
		Body:      p.Name,
		CreatedAt: r.now,
	}
	if err := tx.InsertMessage(ctx, msg); err != nil {
		return err
	}
	ob.add(m.UserID, EventColonyFounded, map[string]any{"propertyId": p.ID, "coords": p.Coords})
	return nil
}
