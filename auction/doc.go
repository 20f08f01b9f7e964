// Package auction wires the court-auction analysis pipeline onto the
// caseflow engine.
//
// The pipeline collects case documents, analyses rights and location in
// parallel, values the property, grades its risk, drafts a bid strategy,
// optionally sends the case to a red-team review and finally renders a
// report:
//
//	collect ─(complete?)─▶ analysis{rights, location} ─▶ valuation ─▶ risk
//	   ▲          │                                                   │
//	   └─(recollect)                                                  ▼
//	                          report ◀─ red_team ◀─(grade C/D)─ strategy
//	                            ▲                                     │
//	                            └──────────────(otherwise)────────────┘
//
// The analysis itself lives behind one-method collaborator interfaces, so
// callers plug in their own scrapers and models. Only collect and report
// are fatal; every other stage degrades to a sentinel payload.
package auction
